package domain

import (
	"fmt"
	"time"
)

// TagTarget tells the custom tag step which draft field it fills
type TagTarget int

const (
	TagTargetCategory TagTarget = iota
	TagTargetSubcategory
)

// Registration holds the answers collected during sign-up
type Registration struct {
	Name    string
	Phone   string
	Address string
}

// Draft is a listing under construction. Fields are filled one stage at a time.
type Draft struct {
	Category    string
	Subcategory string
	TagTarget   TagTarget
	Name        string
	Description string
	Price       *Price
	ImageRef    string
}

// ReadyForImage checks that every field the image step consumes is present
func (d *Draft) ReadyForImage() error {
	if d == nil {
		return fmt.Errorf("%w: no draft", ErrIncompleteDraft)
	}
	switch {
	case d.Name == "":
		return fmt.Errorf("%w: name missing", ErrIncompleteDraft)
	case d.Description == "":
		return fmt.Errorf("%w: description missing", ErrIncompleteDraft)
	case d.Price == nil:
		return fmt.Errorf("%w: price missing", ErrIncompleteDraft)
	}
	return nil
}

// ReadyForDecision checks that the draft can become a listing
func (d *Draft) ReadyForDecision() error {
	if err := d.ReadyForImage(); err != nil {
		return err
	}
	if d.ImageRef == "" {
		return fmt.Errorf("%w: image missing", ErrIncompleteDraft)
	}
	return nil
}

// Session is the per-user conversation state
type Session struct {
	UserID                  string
	Stage                   Stage
	Draft                   *Draft
	Registration            Registration
	PendingContactListingID string
	RescheduleListingID     string
	UpdatedAt               time.Time
}

// NewSession creates a fresh session. Registered users start at the main menu.
func NewSession(userID string, registered bool) *Session {
	stage := StageRegisterName
	if registered {
		stage = StageMainMenu
	}
	return &Session{
		UserID:    userID,
		Stage:     stage,
		UpdatedAt: time.Now(),
	}
}

// Clone returns a deep copy
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Draft != nil {
		d := *s.Draft
		if s.Draft.Price != nil {
			p := *s.Draft.Price
			d.Price = &p
		}
		c.Draft = &d
	}
	return &c
}

// ToMainMenu returns to the main menu, discarding any in-progress work
func (s *Session) ToMainMenu() {
	s.Stage = StageMainMenu
	s.Draft = nil
	s.RescheduleListingID = ""
}

// IsFresh reports whether the session was touched within the idle timeout
func (s *Session) IsFresh(idleTimeout time.Duration, now time.Time) bool {
	if idleTimeout <= 0 {
		return true
	}
	return now.Sub(s.UpdatedAt) <= idleTimeout
}

// Touch updates active time
func (s *Session) Touch() {
	s.UpdatedAt = time.Now()
}
