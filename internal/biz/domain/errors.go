package domain

import (
	"errors"
	"fmt"
)

var (
	ErrListingNotFound       = errors.New("listing not found")
	ErrAlreadyPosted         = errors.New("listing already posted")
	ErrPublishInProgress     = errors.New("listing is being published by another writer")
	ErrNotOwner              = errors.New("listing belongs to another user")
	ErrIncompleteDraft       = errors.New("draft incomplete")
	ErrSchedulerStopped      = errors.New("scheduler not running")
	ErrInvalidPhone          = errors.New("invalid phone number")
	ErrInvalidPrice          = errors.New("invalid price")
	ErrInvalidScheduleFormat = errors.New("invalid schedule format")
	ErrScheduleInPast        = errors.New("scheduled time is not in the future")
	ErrInvalidDeepLink       = errors.New("invalid deep link")
	ErrUnknownCommand        = errors.New("unknown command")
	ErrEmptyTag              = errors.New("empty tag")
)

// PublishError wraps a channel failure for one listing
type PublishError struct {
	ListingID string
	Err       error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish listing %s: %v", e.ListingID, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}
