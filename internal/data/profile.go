package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
	"github.com/DevRickLin/feishu-market-bot/internal/biz/repo"
)

// profileRepo implements the Profile repository
type profileRepo struct {
	db *sql.DB
}

// NewProfileRepo creates a new Profile repository
func NewProfileRepo(db *sql.DB) (repo.ProfileRepo, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS profiles (
			user_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			phone TEXT NOT NULL,
			address TEXT NOT NULL,
			registration_complete INTEGER NOT NULL DEFAULT 0,
			registered_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create profiles table: %w", err)
	}
	return &profileRepo{db: db}, nil
}

// Get gets a profile, nil when the user never registered
func (r *profileRepo) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, name, phone, address, registration_complete, registered_at
		FROM profiles
		WHERE user_id = ?
	`, userID)

	var p domain.Profile
	var registeredAt int64
	err := row.Scan(&p.UserID, &p.Name, &p.Phone, &p.Address, &p.RegistrationComplete, &registeredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}
	p.RegisteredAt = time.Unix(registeredAt, 0)
	return &p, nil
}

// Save saves a profile
func (r *profileRepo) Save(ctx context.Context, p *domain.Profile) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO profiles (user_id, name, phone, address, registration_complete, registered_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.UserID, p.Name, p.Phone, p.Address, p.RegistrationComplete, p.RegisteredAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// preferenceRepo implements the Preference repository
type preferenceRepo struct {
	db *sql.DB
}

// NewPreferenceRepo creates a new Preference repository
func NewPreferenceRepo(db *sql.DB) (repo.PreferenceRepo, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS preferences (
			user_id TEXT PRIMARY KEY,
			auto_post INTEGER NOT NULL,
			notifications INTEGER NOT NULL,
			language TEXT NOT NULL,
			theme TEXT NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create preferences table: %w", err)
	}
	return &preferenceRepo{db: db}, nil
}

// Get gets preferences, falling back to defaults
func (r *preferenceRepo) Get(ctx context.Context, userID string) (*domain.Preferences, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, auto_post, notifications, language, theme
		FROM preferences
		WHERE user_id = ?
	`, userID)

	var p domain.Preferences
	err := row.Scan(&p.UserID, &p.AutoPost, &p.Notifications, &p.Language, &p.Theme)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DefaultPreferences(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query preferences: %w", err)
	}
	return &p, nil
}

// Save saves preferences
func (r *preferenceRepo) Save(ctx context.Context, p *domain.Preferences) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO preferences (user_id, auto_post, notifications, language, theme)
		VALUES (?, ?, ?, ?, ?)
	`, p.UserID, p.AutoPost, p.Notifications, p.Language, p.Theme)
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}
