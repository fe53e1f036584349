package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ScheduleLayout is the accepted date/time input format
const ScheduleLayout = "2006-01-02 15:04"

var (
	phonePattern    = regexp.MustCompile(`^\+251\d{9}$`)
	schedulePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}$`)
)

// ValidatePhone checks the national format +251 followed by nine digits
func ValidatePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if !phonePattern.MatchString(phone) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, phone)
	}
	return phone, nil
}

// NormalizeContactPhone prefixes a shared contact number with "+" when missing
func NormalizeContactPhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone != "" && !strings.HasPrefix(phone, "+") {
		phone = "+" + phone
	}
	return phone
}

// NormalizeTag forces a custom category tag to start with "#"
func NormalizeTag(tag string) (string, error) {
	tag = strings.TrimSpace(tag)
	if strings.Trim(tag, "#") == "" {
		return "", ErrEmptyTag
	}
	if !strings.HasPrefix(tag, "#") {
		tag = "#" + tag
	}
	return tag, nil
}

// ParseScheduleTime parses "YYYY-MM-DD HH:MM" in loc and requires it to be after now
func ParseScheduleTime(text string, now time.Time, loc *time.Location) (time.Time, error) {
	text = strings.TrimSpace(text)
	if !schedulePattern.MatchString(text) {
		return time.Time{}, ErrInvalidScheduleFormat
	}
	if loc == nil {
		loc = time.Local
	}
	at, err := time.ParseInLocation(ScheduleLayout, text, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidScheduleFormat, err)
	}
	if !at.After(now) {
		return time.Time{}, ErrScheduleInPast
	}
	return at, nil
}
