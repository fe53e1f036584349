package repo

import (
	"context"
	"time"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
)

// ListingRepo is the listing repository interface
// Responsible for listing persistence (SQLite)
type ListingRepo interface {
	// Create inserts a new listing
	Create(ctx context.Context, l *domain.Listing) error

	// Get returns domain.ErrListingNotFound when the id is unknown
	Get(ctx context.Context, id string) (*domain.Listing, error)

	// Update replaces the whole record
	Update(ctx context.Context, l *domain.Listing) error

	// Delete removes a listing, returns domain.ErrListingNotFound when absent
	Delete(ctx context.Context, id string) error

	// ListByOwner lists a user's listings, newest first
	ListByOwner(ctx context.Context, ownerID string) ([]*domain.Listing, error)

	// ListAll lists every listing, newest first
	ListAll(ctx context.Context) ([]*domain.Listing, error)

	// ListAutoPostCandidates lists unposted, unscheduled listings, oldest first
	ListAutoPostCandidates(ctx context.Context) ([]*domain.Listing, error)

	// ListPendingScheduled lists unposted listings that carry a scheduled time
	ListPendingScheduled(ctx context.Context) ([]*domain.Listing, error)

	// ClaimPublish takes the publishing lease until the given time.
	// Returns false when the listing is posted or another writer holds a live lease.
	ClaimPublish(ctx context.Context, id string, now, until time.Time) (bool, error)

	// ReleasePublish drops the publishing lease of an unposted listing
	ReleasePublish(ctx context.Context, id string) error

	// MarkPosted flips posted from false to true, records the message ref and
	// drops the lease. Returns false when the listing was already posted.
	MarkPosted(ctx context.Context, id, messageRef string, at time.Time) (bool, error)
}
