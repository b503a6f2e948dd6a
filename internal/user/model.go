package user

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Identity providers
const (
	ProviderLocal  = "local"
	ProviderGoogle = "google"
)

// RoleUser is assigned to every new account
const RoleUser = "user"

type User struct {
	ID              uuid.UUID  `json:"id"`
	Email           string     `json:"email"`
	Name            string     `json:"name"`
	PasswordHash    string     `json:"-"` // empty for accounts created through OAuth
	Mobile          string     `json:"mobile,omitempty"`
	EmailVerified   bool       `json:"is_email_verified"`
	Provider        string     `json:"provider"`
	ProviderID      string     `json:"-"`
	Image           string     `json:"image,omitempty"`
	Role            string     `json:"role"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	LastLogin       *time.Time `json:"last_login,omitempty"`
	PasswordResetAt *time.Time `json:"-"`
}

// HasPassword reports whether the account can sign in with a password
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// NewUser holds the fields needed to create an account
type NewUser struct {
	Email         string
	Name          string
	PasswordHash  string
	Mobile        string
	Provider      string
	ProviderID    string
	Image         string
	EmailVerified bool
}

// ProfileUpdate holds optional profile changes; nil fields are left untouched
type ProfileUpdate struct {
	Name   *string
	Mobile *string
}

// NormalizeEmail lowercases and trims an address before any lookup or write
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
