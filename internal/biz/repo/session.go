package repo

import (
	"context"
	"time"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
)

// SessionRepo is the session repository interface
// Implementations hand out copies, never shared pointers
type SessionRepo interface {
	// Get returns nil, nil when the user has no session
	Get(ctx context.Context, userID string) (*domain.Session, error)

	// Save saves a session (create or update)
	Save(ctx context.Context, s *domain.Session) error

	// Delete deletes a session
	Delete(ctx context.Context, userID string) error

	// CleanupStale removes sessions idle since before
	CleanupStale(ctx context.Context, before time.Time) (int64, error)

	// ListAll lists all sessions (for debugging)
	ListAll(ctx context.Context) ([]*domain.Session, error)
}
