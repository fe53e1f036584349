package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
	"github.com/DevRickLin/feishu-market-bot/internal/biz/repo"
)

// sessionRepo implements the Session repository
type sessionRepo struct {
	db *sql.DB
}

// sessionState is the JSON column holding everything but the stage
type sessionState struct {
	Draft                   *domain.Draft       `json:"draft,omitempty"`
	Registration            domain.Registration `json:"registration"`
	PendingContactListingID string              `json:"pending_contact_listing_id,omitempty"`
	RescheduleListingID     string              `json:"reschedule_listing_id,omitempty"`
}

// NewSessionRepo creates a new Session repository
func NewSessionRepo(db *sql.DB) (repo.SessionRepo, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			user_id TEXT PRIMARY KEY,
			stage INTEGER NOT NULL,
			state TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &sessionRepo{db: db}, nil
}

// Get gets a session by user id
func (r *sessionRepo) Get(ctx context.Context, userID string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, stage, state, updated_at
		FROM sessions
		WHERE user_id = ?
	`, userID)

	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return s, nil
}

// Save saves a session
func (r *sessionRepo) Save(ctx context.Context, s *domain.Session) error {
	state, err := json.Marshal(sessionState{
		Draft:                   s.Draft,
		Registration:            s.Registration,
		PendingContactListingID: s.PendingContactListingID,
		RescheduleListingID:     s.RescheduleListingID,
	})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions (user_id, stage, state, updated_at)
		VALUES (?, ?, ?, ?)
	`, s.UserID, int(s.Stage), string(state), s.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete deletes a session
func (r *sessionRepo) Delete(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// CleanupStale cleans up sessions idle since before
func (r *sessionRepo) CleanupStale(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup stale sessions: %w", err)
	}
	return result.RowsAffected()
}

// ListAll lists all sessions
func (r *sessionRepo) ListAll(ctx context.Context) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, stage, state, updated_at
		FROM sessions
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func scanSession(sc scanner) (*domain.Session, error) {
	var s domain.Session
	var stage int
	var raw string
	var updatedAt int64
	if err := sc.Scan(&s.UserID, &stage, &raw, &updatedAt); err != nil {
		return nil, err
	}

	var state sessionState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}

	s.Stage = domain.Stage(stage)
	s.Draft = state.Draft
	s.Registration = state.Registration
	s.PendingContactListingID = state.PendingContactListingID
	s.RescheduleListingID = state.RescheduleListingID
	s.UpdatedAt = time.UnixMilli(updatedAt)
	return &s, nil
}
