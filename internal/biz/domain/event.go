package domain

import (
	"fmt"
	"strings"
)

// EventKind identifies the shape of an inbound event
type EventKind int

const (
	EventText EventKind = iota
	EventPhoto
	EventContact
	EventButton
	EventCancel
	EventStart
)

func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventPhoto:
		return "photo"
	case EventContact:
		return "contact"
	case EventButton:
		return "button"
	case EventCancel:
		return "cancel"
	case EventStart:
		return "start"
	}
	return "unknown"
}

// Photo references an uploaded image. Key is reusable for sending, Path is a local copy.
type Photo struct {
	Key  string
	Path string
}

// Event is one inbound user action. Only the field matching Kind is set.
type Event struct {
	Kind     EventKind
	Text     string
	Photo    *Photo
	Phone    string
	Command  Command
	DeepLink *DeepLink
}

func TextEvent(text string) Event { return Event{Kind: EventText, Text: text} }

func PhotoEvent(p Photo) Event { return Event{Kind: EventPhoto, Photo: &p} }

func ContactEvent(phone string) Event { return Event{Kind: EventContact, Phone: phone} }

func ButtonEvent(cmd Command) Event { return Event{Kind: EventButton, Command: cmd} }

func CancelEvent() Event { return Event{Kind: EventCancel} }

func StartEvent(link *DeepLink) Event { return Event{Kind: EventStart, DeepLink: link} }

// IsCommand reports whether the event is a press of the given button
func (e Event) IsCommand(k CommandKind) bool {
	return e.Kind == EventButton && e.Command.Kind == k
}

// DeepLinkKind distinguishes the entry flows a deep link can seed
type DeepLinkKind string

const (
	DeepLinkContact DeepLinkKind = "contact"
	DeepLinkItem    DeepLinkKind = "item"
)

// DeepLink is a parsed start parameter such as "contact_<id>"
type DeepLink struct {
	Kind      DeepLinkKind
	ListingID string
}

// ParseDeepLink parses "contact_<id>" or "item_<id>"
func ParseDeepLink(s string) (*DeepLink, error) {
	s = strings.TrimSpace(s)
	prefix, id, ok := strings.Cut(s, "_")
	if !ok || id == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDeepLink, s)
	}
	switch DeepLinkKind(prefix) {
	case DeepLinkContact, DeepLinkItem:
		return &DeepLink{Kind: DeepLinkKind(prefix), ListingID: id}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidDeepLink, s)
}

func (d DeepLink) String() string {
	return string(d.Kind) + "_" + d.ListingID
}
