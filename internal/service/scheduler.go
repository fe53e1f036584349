package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
	"github.com/DevRickLin/feishu-market-bot/internal/biz/repo"
)

// JobScheduler runs named one-shot and repeating jobs in-process.
// Jobs live only in memory: whatever is armed at Stop is dropped.
type JobScheduler struct {
	mu     sync.Mutex
	jobs   map[string]*jobEntry
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    zerolog.Logger
}

type jobEntry struct {
	job  domain.Job
	stop chan struct{}
}

var _ repo.Scheduler = (*JobScheduler)(nil)

// NewJobScheduler creates a scheduler. Jobs can be armed after Start.
func NewJobScheduler() *JobScheduler {
	return &JobScheduler{
		jobs: make(map[string]*jobEntry),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Start starts the scheduler
func (s *JobScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.log.Info().Msg("started")
}

// Stop cancels every armed job and waits for running ones to return
func (s *JobScheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.jobs = make(map[string]*jobEntry)
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info().Msg("stopped")
}

// ScheduleOnce arms a job that fires once at the given time. A past time fires immediately.
func (s *JobScheduler) ScheduleOnce(name string, at time.Time, fn repo.JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, err := s.runningCtx()
	if err != nil {
		return err
	}

	e := &jobEntry{
		job:  domain.Job{Kind: domain.JobOneShot, Name: name, FireAt: at},
		stop: make(chan struct{}),
	}
	if id, ok := domain.ListingIDFromJobName(name); ok {
		e.job.Payload = id
	}
	s.replaceLocked(e)

	s.wg.Add(1)
	go s.runOnce(ctx, e, fn)

	s.log.Debug().Str("job", name).Time("fire_at", at).Msg("one-shot job armed")
	return nil
}

// ScheduleRepeating arms a job that fires after first and then every interval
func (s *JobScheduler) ScheduleRepeating(name string, first, interval time.Duration, fn repo.JobFunc) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, err := s.runningCtx()
	if err != nil {
		return err
	}

	e := &jobEntry{
		job: domain.Job{
			Kind:     domain.JobRepeating,
			Name:     name,
			FireAt:   time.Now().Add(first),
			Interval: interval,
		},
		stop: make(chan struct{}),
	}
	s.replaceLocked(e)

	s.wg.Add(1)
	go s.runRepeating(ctx, e, first, fn)

	s.log.Debug().Str("job", name).Dur("first", first).Dur("interval", interval).Msg("repeating job armed")
	return nil
}

// Cancel disarms a job, reports whether it was armed
func (s *JobScheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[name]
	if !ok {
		return false
	}
	delete(s.jobs, name)
	close(e.stop)
	s.log.Debug().Str("job", name).Msg("job cancelled")
	return true
}

// Jobs lists armed jobs sorted by name
func (s *JobScheduler) Jobs() []domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]domain.Job, 0, len(s.jobs))
	for _, e := range s.jobs {
		jobs = append(jobs, e.job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs
}

func (s *JobScheduler) runningCtx() (context.Context, error) {
	if s.ctx == nil || s.ctx.Err() != nil {
		return nil, domain.ErrSchedulerStopped
	}
	return s.ctx, nil
}

func (s *JobScheduler) replaceLocked(e *jobEntry) {
	if old, ok := s.jobs[e.job.Name]; ok {
		close(old.stop)
	}
	s.jobs[e.job.Name] = e
}

// claim removes a one-shot entry before it runs. False means it was cancelled or replaced.
func (s *JobScheduler) claim(e *jobEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.jobs[e.job.Name] != e {
		return false
	}
	delete(s.jobs, e.job.Name)
	return true
}

func (s *JobScheduler) runOnce(ctx context.Context, e *jobEntry, fn repo.JobFunc) {
	defer s.wg.Done()

	timer := time.NewTimer(time.Until(e.job.FireAt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-e.stop:
		return
	case <-timer.C:
	}

	if !s.claim(e) {
		return
	}
	s.invoke(ctx, e.job.Name, fn)
}

func (s *JobScheduler) runRepeating(ctx context.Context, e *jobEntry, first time.Duration, fn repo.JobFunc) {
	defer s.wg.Done()

	timer := time.NewTimer(first)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-e.stop:
		return
	case <-timer.C:
	}

	ticker := time.NewTicker(e.job.Interval)
	defer ticker.Stop()

	for {
		if !s.advance(e) {
			return
		}
		s.invoke(ctx, e.job.Name, fn)

		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case <-ticker.C:
		}
	}
}

// advance records the next fire time, false if the entry is no longer armed
func (s *JobScheduler) advance(e *jobEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.jobs[e.job.Name] != e {
		return false
	}
	e.job.FireAt = time.Now().Add(e.job.Interval)
	return true
}

func (s *JobScheduler) invoke(ctx context.Context, name string, fn repo.JobFunc) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("job", name).Interface("panic", r).Msg("job panicked")
		}
	}()

	start := time.Now()
	s.log.Info().Str("job", name).Msg("job fired")
	fn(ctx)
	s.log.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("job finished")
}
