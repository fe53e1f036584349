package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
	"github.com/DevRickLin/feishu-market-bot/internal/biz/repo"
)

// AutoPostConfig tunes the sweep
type AutoPostConfig struct {
	// Limit is the most listings published per sweep
	Limit int
	// Delay is the pause between two publications
	Delay time.Duration
	// RetryAfter keeps a listing whose publish failed out of sweeps for a while
	RetryAfter time.Duration
}

// SweepFailure records one listing the sweep could not publish
type SweepFailure struct {
	ListingID string `json:"listing_id"`
	Error     string `json:"error"`
}

// SweepReport summarises one auto-post sweep
type SweepReport struct {
	StartedAt   time.Time      `json:"started_at"`
	Candidates  int            `json:"candidates"`
	OptedOut    int            `json:"opted_out"`
	CoolingDown int            `json:"cooling_down"`
	Published   []string       `json:"published"`
	Failed      []SweepFailure `json:"failed,omitempty"`
	Interrupted bool           `json:"interrupted,omitempty"`
}

// AutoPostUsecase publishes unscheduled listings in small batches
type AutoPostUsecase struct {
	listingRepo    repo.ListingRepo
	preferenceRepo repo.PreferenceRepo
	publisher      Publisher
	cfg            AutoPostConfig

	// sweepMu keeps sweeps from overlapping
	sweepMu sync.Mutex
	// attempted maps listing id to the last failed attempt
	attempted map[string]time.Time

	now func() time.Time
	log zerolog.Logger
}

// NewAutoPostUsecase creates a new auto-post usecase
func NewAutoPostUsecase(
	listingRepo repo.ListingRepo,
	preferenceRepo repo.PreferenceRepo,
	publisher Publisher,
	cfg AutoPostConfig,
) *AutoPostUsecase {
	if cfg.Limit <= 0 {
		cfg.Limit = 1
	}
	return &AutoPostUsecase{
		listingRepo:    listingRepo,
		preferenceRepo: preferenceRepo,
		publisher:      publisher,
		cfg:            cfg,
		attempted:      make(map[string]time.Time),
		now:            time.Now,
		log:            log.With().Str("component", "autopost").Logger(),
	}
}

// Sweep selects unposted, unscheduled listings whose owners allow auto-posting
// and publishes up to Limit of them, pausing Delay between publications.
func (uc *AutoPostUsecase) Sweep(ctx context.Context) (*SweepReport, error) {
	uc.sweepMu.Lock()
	defer uc.sweepMu.Unlock()

	report := &SweepReport{StartedAt: uc.now(), Published: []string{}}

	candidates, err := uc.listingRepo.ListAutoPostCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	report.Candidates = len(candidates)

	selected := uc.selectBatch(ctx, candidates, report)
	for i, l := range selected {
		if i > 0 && uc.cfg.Delay > 0 {
			select {
			case <-ctx.Done():
				report.Interrupted = true
				return report, nil
			case <-time.After(uc.cfg.Delay):
			}
		}

		res, err := uc.publisher.Publish(ctx, l.ID)
		if err != nil {
			uc.markFailed(l.ID)
			report.Failed = append(report.Failed, SweepFailure{ListingID: l.ID, Error: err.Error()})
			uc.log.Warn().Err(err).Str("listing_id", l.ID).Msg("auto-post failed")
			continue
		}
		uc.clearFailed(l.ID)
		if !res.AlreadyPosted {
			report.Published = append(report.Published, l.ID)
		}
	}

	uc.log.Info().
		Int("candidates", report.Candidates).
		Int("published", len(report.Published)).
		Int("failed", len(report.Failed)).
		Int("opted_out", report.OptedOut).
		Int("cooling_down", report.CoolingDown).
		Msg("sweep finished")
	return report, nil
}

// selectBatch filters candidates by preference and retry cooldown, then caps them at Limit
func (uc *AutoPostUsecase) selectBatch(ctx context.Context, candidates []*domain.Listing, report *SweepReport) []*domain.Listing {
	now := uc.now()
	allowed := make(map[string]bool)
	selected := make([]*domain.Listing, 0, uc.cfg.Limit)

	for _, l := range candidates {
		if len(selected) >= uc.cfg.Limit {
			break
		}
		if uc.coolingDown(l.ID, now) {
			report.CoolingDown++
			continue
		}

		ok, seen := allowed[l.OwnerID]
		if !seen {
			prefs, err := uc.preferenceRepo.Get(ctx, l.OwnerID)
			if err != nil {
				uc.log.Warn().Err(err).Str("user_id", l.OwnerID).Msg("failed to load preferences, skipping owner")
			}
			ok = err == nil && prefs.AutoPost
			allowed[l.OwnerID] = ok
		}
		if !ok {
			report.OptedOut++
			continue
		}
		selected = append(selected, l)
	}
	return selected
}

func (uc *AutoPostUsecase) coolingDown(id string, now time.Time) bool {
	at, ok := uc.attempted[id]
	if !ok {
		return false
	}
	if uc.cfg.RetryAfter > 0 && now.Sub(at) >= uc.cfg.RetryAfter {
		delete(uc.attempted, id)
		return false
	}
	return true
}

func (uc *AutoPostUsecase) markFailed(id string) {
	uc.attempted[id] = uc.now()
}

func (uc *AutoPostUsecase) clearFailed(id string) {
	delete(uc.attempted, id)
}
