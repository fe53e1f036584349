package domain

import (
	"strings"
	"time"
)

// JobKind distinguishes timers that fire once from those that repeat
type JobKind string

const (
	JobOneShot   JobKind = "one_shot"
	JobRepeating JobKind = "repeating"
)

// AutoPostJobName is the repeating job that drives the auto-post sweep
const AutoPostJobName = "auto_post"

const scheduledJobPrefix = "scheduled_"

// Job describes an armed timer
type Job struct {
	Kind     JobKind       `json:"kind"`
	Name     string        `json:"name"`
	FireAt   time.Time     `json:"fire_at"`
	Interval time.Duration `json:"interval,omitempty"`
	Payload  string        `json:"payload,omitempty"`
}

// ScheduledJobName names the one-shot publish job of a listing
func ScheduledJobName(listingID string) string {
	return scheduledJobPrefix + listingID
}

// ListingIDFromJobName extracts the listing id from a one-shot publish job name
func ListingIDFromJobName(name string) (string, bool) {
	id, ok := strings.CutPrefix(name, scheduledJobPrefix)
	return id, ok && id != ""
}
