package repo

import (
	"context"
	"time"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
)

// JobFunc is the body of a scheduled job
type JobFunc func(ctx context.Context)

// Scheduler arms named timers. Scheduling a name that is already armed replaces it.
type Scheduler interface {
	// ScheduleOnce runs fn once at the given time
	ScheduleOnce(name string, at time.Time, fn JobFunc) error

	// ScheduleRepeating runs fn after first, then every interval
	ScheduleRepeating(name string, first, interval time.Duration, fn JobFunc) error

	// Cancel disarms a job, reports whether one existed
	Cancel(name string) bool

	// Jobs lists armed jobs sorted by name
	Jobs() []domain.Job
}
