package domain

import (
	"strings"
	"time"
)

// Theme values accepted for User.Theme.
const (
	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeSystem = "system"

	DefaultTheme    = ThemeSystem
	DefaultLanguage = "en"
)

// User is an account. It can sign in with a password, an OAuth provider, or
// both, but never with neither.
type User struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	PasswordHash       *string    `json:"-"`
	Name               string     `json:"name"`
	Role               Role       `json:"role"`
	EmailVerifiedAt    *time.Time `json:"email_verified_at,omitempty"`
	ExternalProviderID *string    `json:"-"`
	Provider           string     `json:"provider,omitempty"`
	Avatar             string     `json:"avatar,omitempty"`
	Theme              string     `json:"theme"`
	Language           string     `json:"language"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// IsVerified reports whether the email address has been confirmed.
func (u *User) IsVerified() bool {
	return u.EmailVerifiedAt != nil
}

// HasPassword reports whether the account can use password login.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// Validate checks the invariants every persisted user must satisfy.
func (u *User) Validate() error {
	if u.Email == "" {
		return ErrInvalidUser
	}
	if !u.HasPassword() && (u.ExternalProviderID == nil || *u.ExternalProviderID == "") {
		return ErrInvalidUser
	}
	if !u.Role.IsValid() {
		return ErrInvalidUser
	}
	return nil
}

// NormalizeEmail lowercases and trims an address so lookups are
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsValidTheme reports whether t is one of the supported themes.
func IsValidTheme(t string) bool {
	switch t {
	case ThemeLight, ThemeDark, ThemeSystem:
		return true
	}
	return false
}

// OAuthProfile is the identity an external provider vouched for.
type OAuthProfile struct {
	Provider   string
	ProviderID string
	Email      string
	Name       string
	Avatar     string
}
