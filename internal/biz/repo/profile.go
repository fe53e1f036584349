package repo

import (
	"context"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
)

// ProfileRepo stores user registrations
type ProfileRepo interface {
	// Get returns nil, nil when the user never registered
	Get(ctx context.Context, userID string) (*domain.Profile, error)

	// Save creates or replaces a profile
	Save(ctx context.Context, p *domain.Profile) error
}

// PreferenceRepo stores per-user toggles
type PreferenceRepo interface {
	// Get returns the defaults when nothing was saved
	Get(ctx context.Context, userID string) (*domain.Preferences, error)

	// Save creates or replaces preferences
	Save(ctx context.Context, p *domain.Preferences) error
}
