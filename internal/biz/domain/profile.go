package domain

import "time"

// Profile is a user's registration record
type Profile struct {
	UserID               string    `json:"user_id"`
	Name                 string    `json:"name"`
	Phone                string    `json:"phone"`
	Address              string    `json:"address"`
	RegistrationComplete bool      `json:"registration_complete"`
	RegisteredAt         time.Time `json:"registered_at"`
}

// IsRegistered reports whether a profile exists and completed sign-up
func (p *Profile) IsRegistered() bool {
	return p != nil && p.RegistrationComplete
}

// Preferences are per-user toggles
type Preferences struct {
	UserID        string `json:"user_id"`
	AutoPost      bool   `json:"auto_post"`
	Notifications bool   `json:"notifications"`
	Language      string `json:"language"`
	Theme         string `json:"theme"`
}

const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// DefaultPreferences returns the settings a user starts with
func DefaultPreferences(userID string) *Preferences {
	return &Preferences{
		UserID:        userID,
		AutoPost:      true,
		Notifications: true,
		Language:      "en",
		Theme:         ThemeLight,
	}
}

// ToggleTheme switches between light and dark
func (p *Preferences) ToggleTheme() {
	if p.Theme == ThemeDark {
		p.Theme = ThemeLight
		return
	}
	p.Theme = ThemeDark
}
