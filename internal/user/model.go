package user

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	Username      string    `json:"username"`
	PasswordHash  *string   `json:"-"` // nil for OAuth-only accounts
	OAuthID       *string   `json:"-"`
	EmailVerified bool      `json:"email_verified"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Picture       string    `json:"picture"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Profile holds the user-facing fields an identity provider may supply.
type Profile struct {
	FirstName string
	LastName  string
	Picture   string
}

// HasPassword reports whether the account can log in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// HasOAuth reports whether an OAuth identity is attached.
func (u *User) HasOAuth() bool {
	return u.OAuthID != nil && *u.OAuthID != ""
}

// DisplayName is the name used to greet the user in emails.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// NormalizeEmail is applied before every email write and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FillEmpty returns p with every empty field taken from other.
// Non-empty fields are never overwritten.
func (p Profile) FillEmpty(other Profile) Profile {
	if p.FirstName == "" {
		p.FirstName = other.FirstName
	}
	if p.LastName == "" {
		p.LastName = other.LastName
	}
	if p.Picture == "" {
		p.Picture = other.Picture
	}
	return p
}

// Profile returns the profile fields of u.
func (u *User) Profile() Profile {
	return Profile{FirstName: u.FirstName, LastName: u.LastName, Picture: u.Picture}
}
