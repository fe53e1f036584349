package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
	"github.com/DevRickLin/feishu-market-bot/internal/biz/repo"
)

// Publisher publishes a listing by id
type Publisher interface {
	Publish(ctx context.Context, listingID string) (*PublishResult, error)
}

// ScheduleUsecase arms and restores one-shot publish jobs
type ScheduleUsecase struct {
	listingRepo    repo.ListingRepo
	preferenceRepo repo.PreferenceRepo
	messageRepo    repo.MessageRepo
	eventRepo      repo.EventRepo
	scheduler      repo.Scheduler
	publisher      Publisher

	now func() time.Time
	log zerolog.Logger
}

// NewScheduleUsecase creates a new schedule usecase
func NewScheduleUsecase(
	listingRepo repo.ListingRepo,
	preferenceRepo repo.PreferenceRepo,
	messageRepo repo.MessageRepo,
	eventRepo repo.EventRepo,
	scheduler repo.Scheduler,
	publisher Publisher,
) *ScheduleUsecase {
	return &ScheduleUsecase{
		listingRepo:    listingRepo,
		preferenceRepo: preferenceRepo,
		messageRepo:    messageRepo,
		eventRepo:      eventRepo,
		scheduler:      scheduler,
		publisher:      publisher,
		now:            time.Now,
		log:            log.With().Str("component", "schedule").Logger(),
	}
}

// Schedule stores the publish time on the listing and arms its one-shot job,
// replacing any job armed earlier for the same listing.
func (uc *ScheduleUsecase) Schedule(ctx context.Context, listingID string, at time.Time) (*domain.Listing, error) {
	l, err := uc.listingRepo.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l.Posted {
		return nil, fmt.Errorf("%w: %s", domain.ErrAlreadyPosted, listingID)
	}

	previous := l.ScheduledAt
	l.ScheduledAt = &at
	if err := uc.listingRepo.Update(ctx, l); err != nil {
		return nil, fmt.Errorf("save schedule: %w", err)
	}

	if err := uc.arm(listingID, at); err != nil {
		l.ScheduledAt = previous
		if rbErr := uc.listingRepo.Update(ctx, l); rbErr != nil {
			uc.log.Error().Err(rbErr).Str("listing_id", listingID).Msg("failed to roll back schedule")
		}
		return nil, fmt.Errorf("arm job: %w", err)
	}

	uc.log.Info().Str("listing_id", listingID).Time("fire_at", at).Msg("listing scheduled")

	if err := uc.eventRepo.Emit(ctx, domain.ListingEvent{
		Type:      domain.ListingEventScheduled,
		ListingID: listingID,
		OwnerID:   l.OwnerID,
		FireAt:    &at,
		At:        uc.now(),
	}); err != nil {
		uc.log.Warn().Err(err).Str("listing_id", listingID).Msg("failed to emit scheduled event")
	}
	return l, nil
}

// Unschedule disarms the listing's job, reports whether one was armed
func (uc *ScheduleUsecase) Unschedule(listingID string) bool {
	return uc.scheduler.Cancel(domain.ScheduledJobName(listingID))
}

// RestorePending re-arms jobs for unposted listings whose time is still ahead.
// Listings whose time passed while the process was down stay pending.
func (uc *ScheduleUsecase) RestorePending(ctx context.Context) (int, error) {
	pending, err := uc.listingRepo.ListPendingScheduled(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending: %w", err)
	}

	now := uc.now()
	restored := 0
	for _, l := range pending {
		if !l.ScheduledAt.After(now) {
			uc.log.Warn().Str("listing_id", l.ID).Time("scheduled_at", *l.ScheduledAt).Msg("scheduled time missed, leaving pending")
			continue
		}
		if err := uc.arm(l.ID, *l.ScheduledAt); err != nil {
			return restored, fmt.Errorf("arm %s: %w", l.ID, err)
		}
		restored++
	}

	uc.log.Info().Int("restored", restored).Int("pending", len(pending)).Msg("scheduled jobs restored")
	return restored, nil
}

func (uc *ScheduleUsecase) arm(listingID string, at time.Time) error {
	return uc.scheduler.ScheduleOnce(domain.ScheduledJobName(listingID), at, func(ctx context.Context) {
		uc.fire(ctx, listingID)
	})
}

// fire publishes a scheduled listing and tells its owner
func (uc *ScheduleUsecase) fire(ctx context.Context, listingID string) {
	res, err := uc.publisher.Publish(ctx, listingID)
	if err != nil {
		uc.log.Error().Err(err).Str("listing_id", listingID).Str("job", domain.ScheduledJobName(listingID)).Msg("scheduled publish failed")
		return
	}
	if res.AlreadyPosted {
		return
	}

	l, err := uc.listingRepo.Get(ctx, listingID)
	if err != nil {
		uc.log.Warn().Err(err).Str("listing_id", listingID).Msg("published listing vanished")
		return
	}
	prefs, err := uc.preferenceRepo.Get(ctx, l.OwnerID)
	if err != nil {
		uc.log.Warn().Err(err).Str("user_id", l.OwnerID).Msg("failed to load preferences")
		return
	}
	if !prefs.Notifications {
		return
	}

	text := fmt.Sprintf("✅ Your scheduled product '%s' has been posted to the channel!", l.Name)
	if err := uc.messageRepo.NotifyUser(ctx, l.OwnerID, text); err != nil {
		uc.log.Warn().Err(err).Str("user_id", l.OwnerID).Msg("failed to notify owner")
	}
}
