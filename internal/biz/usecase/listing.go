package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
	"github.com/DevRickLin/feishu-market-bot/internal/biz/repo"
)

// ListingUsecase creates, browses and deletes listings
type ListingUsecase struct {
	listingRepo repo.ListingRepo
	eventRepo   repo.EventRepo
	scheduler   repo.Scheduler

	newID func() string
	now   func() time.Time
	log   zerolog.Logger
}

// NewListingUsecase creates a new listing usecase
func NewListingUsecase(listingRepo repo.ListingRepo, eventRepo repo.EventRepo, scheduler repo.Scheduler) *ListingUsecase {
	return &ListingUsecase{
		listingRepo: listingRepo,
		eventRepo:   eventRepo,
		scheduler:   scheduler,
		newID:       uuid.NewString,
		now:         time.Now,
		log:         log.With().Str("component", "listing").Logger(),
	}
}

// Create persists a completed draft as an unposted, unscheduled listing
func (uc *ListingUsecase) Create(ctx context.Context, owner *domain.Profile, d *domain.Draft) (*domain.Listing, error) {
	l, err := domain.NewListing(uc.newID(), owner, d, uc.now())
	if err != nil {
		return nil, err
	}
	if err := uc.listingRepo.Create(ctx, l); err != nil {
		return nil, fmt.Errorf("create listing: %w", err)
	}
	uc.log.Info().Str("listing_id", l.ID).Str("user_id", l.OwnerID).Msg("listing created")
	return l, nil
}

// Get returns a listing by id
func (uc *ListingUsecase) Get(ctx context.Context, id string) (*domain.Listing, error) {
	return uc.listingRepo.Get(ctx, id)
}

// GetOwned returns a listing only if userID owns it
func (uc *ListingUsecase) GetOwned(ctx context.Context, userID, id string) (*domain.Listing, error) {
	l, err := uc.listingRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.OwnerID != userID {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotOwner, id)
	}
	return l, nil
}

// ListByOwner lists a user's listings, newest first
func (uc *ListingUsecase) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Listing, error) {
	return uc.listingRepo.ListByOwner(ctx, ownerID)
}

// ListAll lists every listing, newest first
func (uc *ListingUsecase) ListAll(ctx context.Context) ([]*domain.Listing, error) {
	return uc.listingRepo.ListAll(ctx)
}

// Page is one page of the explore view
type Page struct {
	Listings []*domain.Listing
	Page     int
	Start    int
	End      int
	Total    int
}

// HasPrev reports whether an earlier page exists
func (p *Page) HasPrev() bool { return p.Page > 0 }

// HasNext reports whether a later page exists
func (p *Page) HasNext() bool { return p.End < p.Total }

// Explore returns one page of all listings. Out-of-range pages clamp to the last one.
func (uc *ListingUsecase) Explore(ctx context.Context, page, size int) (*Page, error) {
	if size <= 0 {
		size = 3
	}
	all, err := uc.listingRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	p := &Page{Total: len(all)}
	if p.Total == 0 {
		return p, nil
	}
	last := (p.Total - 1) / size
	if page > last {
		page = last
	}
	if page < 0 {
		page = 0
	}
	p.Page = page
	p.Start = page * size
	p.End = min(p.Start+size, p.Total)
	p.Listings = all[p.Start:p.End]
	return p, nil
}

// Delete removes a listing and disarms its scheduled job.
// An empty userID skips the owner check.
func (uc *ListingUsecase) Delete(ctx context.Context, userID, id string) (*domain.Listing, error) {
	l, err := uc.listingRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID != "" && l.OwnerID != userID {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotOwner, id)
	}

	if uc.scheduler != nil && uc.scheduler.Cancel(domain.ScheduledJobName(id)) {
		uc.log.Info().Str("listing_id", id).Msg("scheduled job cancelled")
	}
	if err := uc.listingRepo.Delete(ctx, id); err != nil {
		return nil, err
	}

	uc.log.Info().Str("listing_id", id).Str("user_id", l.OwnerID).Msg("listing deleted")
	if err := uc.eventRepo.Emit(ctx, domain.ListingEvent{
		Type:      domain.ListingEventDeleted,
		ListingID: id,
		OwnerID:   l.OwnerID,
		At:        uc.now(),
	}); err != nil {
		uc.log.Warn().Err(err).Str("listing_id", id).Msg("failed to emit deleted event")
	}
	return l, nil
}

// ClearSchedule drops the scheduled time of an unposted listing so the sweep picks it up again
func (uc *ListingUsecase) ClearSchedule(ctx context.Context, id string) (*domain.Listing, error) {
	l, err := uc.listingRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.Posted || l.ScheduledAt == nil {
		return l, nil
	}
	l.ScheduledAt = nil
	if err := uc.listingRepo.Update(ctx, l); err != nil {
		return nil, fmt.Errorf("clear schedule: %w", err)
	}
	uc.log.Info().Str("listing_id", id).Msg("schedule cleared")
	return l, nil
}

// Stats counts a user's listings by publication state
type Stats struct {
	Total     int
	Posted    int
	Scheduled int
}

// OwnerStats counts the listings of one user
func (uc *ListingUsecase) OwnerStats(ctx context.Context, ownerID string) (Stats, error) {
	listings, err := uc.listingRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return Stats{}, err
	}
	s := Stats{Total: len(listings)}
	for _, l := range listings {
		switch {
		case l.Posted:
			s.Posted++
		case l.IsPending():
			s.Scheduled++
		}
	}
	return s, nil
}
