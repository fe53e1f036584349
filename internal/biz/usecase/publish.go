package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
	"github.com/DevRickLin/feishu-market-bot/internal/biz/repo"
)

// PublishResult is the outcome of one publish request
type PublishResult struct {
	Success       bool   `json:"success"`
	ListingID     string `json:"listing_id"`
	MessageRef    string `json:"message_ref,omitempty"`
	AlreadyPosted bool   `json:"already_posted,omitempty"`
	Error         string `json:"error,omitempty"`
}

const (
	defaultPublishLease = 5 * time.Minute
	defaultClaimWait    = 30 * time.Second
	claimPollInterval   = 200 * time.Millisecond
	markPostedAttempts  = 4
	markPostedBackoff   = 100 * time.Millisecond
)

// PublishUsecase posts listings to the channel at most once
type PublishUsecase struct {
	listingRepo repo.ListingRepo
	channelRepo repo.ChannelRepo
	eventRepo   repo.EventRepo
	currency    string
	loc         *time.Location

	// lease bounds how long a crashed writer blocks the listing
	lease        time.Duration
	claimWait    time.Duration
	pollInterval time.Duration
	markBackoff  time.Duration

	group singleflight.Group
	now   func() time.Time
	log   zerolog.Logger
}

// NewPublishUsecase creates a new publish usecase
func NewPublishUsecase(
	listingRepo repo.ListingRepo,
	channelRepo repo.ChannelRepo,
	eventRepo repo.EventRepo,
	currency string,
	loc *time.Location,
) *PublishUsecase {
	if loc == nil {
		loc = time.Local
	}
	return &PublishUsecase{
		listingRepo:  listingRepo,
		channelRepo:  channelRepo,
		eventRepo:    eventRepo,
		currency:     currency,
		loc:          loc,
		lease:        defaultPublishLease,
		claimWait:    defaultClaimWait,
		pollInterval: claimPollInterval,
		markBackoff:  markPostedBackoff,
		now:          time.Now,
		log:          log.With().Str("component", "publish").Logger(),
	}
}

// Publish posts a listing unless it is already posted.
// Concurrent calls for one id share a single attempt inside this process;
// other processes are kept out by the persisted publishing lease. A channel
// failure returns a *domain.PublishError and leaves the listing untouched.
func (uc *PublishUsecase) Publish(ctx context.Context, listingID string) (*PublishResult, error) {
	v, err, _ := uc.group.Do(listingID, func() (interface{}, error) {
		return uc.publish(ctx, listingID)
	})
	res, _ := v.(*PublishResult)
	if res != nil {
		// Callers sharing a flight must not share the pointer
		cp := *res
		res = &cp
	}
	return res, err
}

func (uc *PublishUsecase) publish(ctx context.Context, listingID string) (*PublishResult, error) {
	l, err := uc.listingRepo.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l.Posted {
		uc.log.Debug().Str("listing_id", listingID).Msg("already posted, skipping")
		return alreadyPosted(l), nil
	}

	posted, err := uc.claim(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if posted != nil {
		uc.log.Info().Str("listing_id", listingID).Str("message_ref", posted.PublishedMessageRef).Msg("published by another writer")
		return alreadyPosted(posted), nil
	}

	now := uc.now()
	buttons := [][]domain.Button{{
		domain.CommandButton("📞 Contact Seller", domain.CommandWithArg(domain.CmdContactSeller, l.ID)),
	}}

	ref, err := uc.channelRepo.PublishPhoto(ctx, l.ImageRef, l.Caption(uc.currency, now.In(uc.loc)), buttons)
	if err != nil {
		uc.log.Error().Err(err).Str("listing_id", listingID).Msg("channel publish failed")
		if relErr := uc.listingRepo.ReleasePublish(context.WithoutCancel(ctx), listingID); relErr != nil {
			uc.log.Warn().Err(relErr).Str("listing_id", listingID).Msg("failed to release publishing lease")
		}
		pubErr := &domain.PublishError{ListingID: listingID, Err: err}
		return &PublishResult{ListingID: listingID, Error: err.Error()}, pubErr
	}

	ok, err := uc.markPosted(ctx, listingID, ref, now)
	if err != nil {
		// The post is live. The lease stays so nobody posts it again before it expires.
		uc.log.Error().Err(err).Str("listing_id", listingID).Str("message_ref", ref).Msg("failed to record publication")
		return &PublishResult{Success: true, ListingID: listingID, MessageRef: ref}, nil
	}
	if !ok {
		stored, getErr := uc.listingRepo.Get(ctx, listingID)
		if getErr == nil && stored.Posted {
			uc.log.Warn().Str("listing_id", listingID).Str("message_ref", ref).
				Str("stored_ref", stored.PublishedMessageRef).Msg("listing was posted by another writer")
			return alreadyPosted(stored), nil
		}
		uc.log.Warn().Str("listing_id", listingID).Str("message_ref", ref).Msg("listing vanished while publishing")
		return &PublishResult{Success: true, ListingID: listingID, MessageRef: ref}, nil
	}

	uc.log.Info().Str("listing_id", listingID).Str("message_ref", ref).Msg("listing published")

	if err := uc.eventRepo.Emit(ctx, domain.ListingEvent{
		Type:       domain.ListingEventPublished,
		ListingID:  listingID,
		OwnerID:    l.OwnerID,
		MessageRef: ref,
		At:         now,
	}); err != nil {
		uc.log.Warn().Err(err).Str("listing_id", listingID).Msg("failed to emit published event")
	}

	return &PublishResult{Success: true, ListingID: listingID, MessageRef: ref}, nil
}

// claim takes the publishing lease. While another writer holds it, claim
// polls until that writer records the post (returned), releases the lease
// (claimed here) or claimWait runs out.
func (uc *PublishUsecase) claim(ctx context.Context, listingID string) (*domain.Listing, error) {
	var timeout <-chan time.Time
	for {
		now := uc.now()
		ok, err := uc.listingRepo.ClaimPublish(ctx, listingID, now, now.Add(uc.lease))
		if err != nil {
			return nil, err
		}
		if ok {
			return nil, nil
		}

		l, err := uc.listingRepo.Get(ctx, listingID)
		if err != nil {
			return nil, err
		}
		if l.Posted {
			return l, nil
		}

		if timeout == nil {
			timer := time.NewTimer(uc.claimWait)
			defer timer.Stop()
			timeout = timer.C
			uc.log.Debug().Str("listing_id", listingID).Msg("publish in progress elsewhere, waiting")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout:
			return nil, fmt.Errorf("%w: %s", domain.ErrPublishInProgress, listingID)
		case <-time.After(uc.pollInterval):
		}
	}
}

// markPosted retries the final write with a doubling backoff
func (uc *PublishUsecase) markPosted(ctx context.Context, listingID, ref string, at time.Time) (bool, error) {
	backoff := uc.markBackoff
	for attempt := 1; ; attempt++ {
		ok, err := uc.listingRepo.MarkPosted(ctx, listingID, ref, at)
		if err == nil {
			return ok, nil
		}
		if attempt == markPostedAttempts {
			return false, err
		}
		uc.log.Warn().Err(err).Str("listing_id", listingID).Int("attempt", attempt).Msg("recording publication failed, retrying")
		select {
		case <-ctx.Done():
			return false, err
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func alreadyPosted(l *domain.Listing) *PublishResult {
	return &PublishResult{
		Success:       true,
		ListingID:     l.ID,
		MessageRef:    l.PublishedMessageRef,
		AlreadyPosted: true,
	}
}

// IsPublishError reports whether err came from the channel
func IsPublishError(err error) bool {
	var pubErr *domain.PublishError
	return errors.As(err, &pubErr)
}

// FormatResult renders a result for logs and the CLI
func FormatResult(r *PublishResult) string {
	switch {
	case r == nil:
		return "no result"
	case r.AlreadyPosted:
		return fmt.Sprintf("listing %s already posted (%s)", r.ListingID, r.MessageRef)
	case r.Success:
		return fmt.Sprintf("listing %s published (%s)", r.ListingID, r.MessageRef)
	}
	return fmt.Sprintf("listing %s failed: %s", r.ListingID, r.Error)
}
