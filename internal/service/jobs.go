package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
	"github.com/DevRickLin/feishu-market-bot/internal/biz/repo"
	"github.com/DevRickLin/feishu-market-bot/internal/biz/usecase"
)

// SessionCleanupJobName is the repeating job that drops idle sessions
const SessionCleanupJobName = "session_cleanup"

// JobsConfig decides which background jobs run and how often
type JobsConfig struct {
	AutoPostEnabled    bool
	AutoPostFirstDelay time.Duration
	AutoPostInterval   time.Duration
	CleanupInterval    time.Duration
}

// JobsRunner arms the background jobs on a scheduler
type JobsRunner struct {
	scheduler  repo.Scheduler
	scheduleUC *usecase.ScheduleUsecase
	autoPostUC *usecase.AutoPostUsecase
	sessionUC  *usecase.SessionUsecase
	cfg        JobsConfig
	log        zerolog.Logger
}

// NewJobsRunner creates a new jobs runner
func NewJobsRunner(
	scheduler repo.Scheduler,
	scheduleUC *usecase.ScheduleUsecase,
	autoPostUC *usecase.AutoPostUsecase,
	sessionUC *usecase.SessionUsecase,
	cfg JobsConfig,
) *JobsRunner {
	return &JobsRunner{
		scheduler:  scheduler,
		scheduleUC: scheduleUC,
		autoPostUC: autoPostUC,
		sessionUC:  sessionUC,
		cfg:        cfg,
		log:        log.With().Str("component", "jobs").Logger(),
	}
}

// Start re-arms pending one-shot jobs and arms the repeating ones.
// The scheduler must already be started.
func (r *JobsRunner) Start(ctx context.Context) error {
	restored, err := r.scheduleUC.RestorePending(ctx)
	if err != nil {
		return fmt.Errorf("restore scheduled listings: %w", err)
	}

	if r.cfg.AutoPostEnabled {
		if err := r.scheduler.ScheduleRepeating(domain.AutoPostJobName, r.cfg.AutoPostFirstDelay, r.cfg.AutoPostInterval, r.runSweep); err != nil {
			return fmt.Errorf("arm auto-post: %w", err)
		}
	}

	if r.cfg.CleanupInterval > 0 {
		if err := r.scheduler.ScheduleRepeating(SessionCleanupJobName, r.cfg.CleanupInterval, r.cfg.CleanupInterval, r.runCleanup); err != nil {
			return fmt.Errorf("arm session cleanup: %w", err)
		}
	}

	r.log.Info().
		Int("restored", restored).
		Bool("auto_post", r.cfg.AutoPostEnabled).
		Dur("interval", r.cfg.AutoPostInterval).
		Msg("background jobs armed")
	return nil
}

func (r *JobsRunner) runSweep(ctx context.Context) {
	if _, err := r.autoPostUC.Sweep(ctx); err != nil {
		r.log.Error().Err(err).Msg("auto-post sweep failed")
	}
}

func (r *JobsRunner) runCleanup(ctx context.Context) {
	if _, err := r.sessionUC.CleanupStale(ctx); err != nil {
		r.log.Error().Err(err).Msg("session cleanup failed")
	}
}
