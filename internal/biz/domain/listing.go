package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Price is a non-negative amount stored in hundredths
type Price int64

// ParsePrice parses a decimal amount such as "100.50"
func ParsePrice(s string) (Price, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidPrice
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, ErrInvalidPrice
	}
	cents := math.Round(f * 100)
	if cents > math.MaxInt64/2 {
		return 0, ErrInvalidPrice
	}
	return Price(cents), nil
}

// Float64 returns the price in whole units
func (p Price) Float64() float64 {
	return float64(p) / 100
}

func (p Price) String() string {
	return fmt.Sprintf("%d.%02d", int64(p)/100, int64(p)%100)
}

// Listing is a single product offer
type Listing struct {
	ID                  string     `json:"id"`
	OwnerID             string     `json:"owner_id"`
	OwnerName           string     `json:"owner_name"`
	OwnerPhone          string     `json:"owner_phone"`
	OwnerAddress        string     `json:"owner_address"`
	Name                string     `json:"name"`
	Description         string     `json:"description"`
	Price               Price      `json:"price_cents"`
	Category            string     `json:"category"`
	Subcategory         string     `json:"subcategory"`
	ImageRef            string     `json:"image_ref"`
	Posted              bool       `json:"posted"`
	ScheduledAt         *time.Time `json:"scheduled_at,omitempty"`
	PublishedMessageRef string     `json:"published_message_ref,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	PostedAt            *time.Time `json:"posted_at,omitempty"`
}

// NewListing builds a listing from a completed draft and the owner's profile
func NewListing(id string, owner *Profile, d *Draft, now time.Time) (*Listing, error) {
	if err := d.ReadyForDecision(); err != nil {
		return nil, err
	}
	l := &Listing{
		ID:           id,
		OwnerID:      owner.UserID,
		OwnerName:    owner.Name,
		OwnerPhone:   owner.Phone,
		OwnerAddress: owner.Address,
		Name:         d.Name,
		Description:  d.Description,
		Price:        *d.Price,
		Category:     d.Category,
		Subcategory:  d.Subcategory,
		ImageRef:     d.ImageRef,
		CreatedAt:    now,
	}
	return l, nil
}

// IsPending reports whether the listing waits for a scheduled publication
func (l *Listing) IsPending() bool {
	return !l.Posted && l.ScheduledAt != nil
}

// Clone returns a deep copy
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	c := *l
	if l.ScheduledAt != nil {
		t := *l.ScheduledAt
		c.ScheduledAt = &t
	}
	if l.PostedAt != nil {
		t := *l.PostedAt
		c.PostedAt = &t
	}
	return &c
}

// CategoryLine renders "category - subcategory", omitting empty parts
func (l *Listing) CategoryLine() string {
	switch {
	case l.Category == "":
		return l.Subcategory
	case l.Subcategory == "":
		return l.Category
	}
	return l.Category + " - " + l.Subcategory
}

// Caption renders the channel post text
func (l *Listing) Caption(currency string, at time.Time) string {
	var sb strings.Builder
	sb.WriteString("🆕 NEW PRODUCT 🆕\n\n")
	sb.WriteString(fmt.Sprintf("📌 %s\n\n", l.Name))
	if line := l.CategoryLine(); line != "" {
		sb.WriteString(line + "\n\n")
	}
	sb.WriteString(fmt.Sprintf("📝 %s\n\n", l.Description))
	sb.WriteString(fmt.Sprintf("💰 Price: %s %s\n\n", l.Price, currency))
	sb.WriteString("📅 " + at.Format(ScheduleLayout))
	return sb.String()
}

// ListingEvent is a lifecycle notification for other systems
type ListingEvent struct {
	Type       string     `json:"type"`
	ListingID  string     `json:"listing_id"`
	OwnerID    string     `json:"owner_id"`
	MessageRef string     `json:"message_ref,omitempty"`
	FireAt     *time.Time `json:"fire_at,omitempty"`
	At         time.Time  `json:"at"`
}

const (
	ListingEventPublished = "listing.published"
	ListingEventScheduled = "listing.scheduled"
	ListingEventDeleted   = "listing.deleted"
)
