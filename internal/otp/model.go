package otp

import (
	"time"
)

// Purpose scopes a code to the flow that requested it
type Purpose string

const (
	PurposeRegistration  Purpose = "registration"
	PurposeLogin         Purpose = "login"
	PurposePasswordReset Purpose = "password_reset"
)

// ParsePurpose validates a purpose received from a client
func ParsePurpose(s string) (Purpose, error) {
	switch p := Purpose(s); p {
	case PurposeRegistration, PurposeLogin, PurposePasswordReset:
		return p, nil
	default:
		return "", ErrInvalidPurpose
	}
}

// Record is the stored state of one code. At most one exists per (email, purpose).
type Record struct {
	Email     string    `json:"email"`
	Purpose   Purpose   `json:"purpose"`
	Code      string    `json:"otp"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	Attempts  int       `json:"attempts"`

	Verified   bool       `json:"verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`

	// SHA-256 of the password reset hand-off token, hex encoded
	VerificationTokenHash string `json:"verification_token_hash,omitempty"`
}

// Expired reports whether the code can no longer be verified
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Issued describes a freshly delivered code
type Issued struct {
	Email     string
	Purpose   Purpose
	ExpiresAt time.Time
	ExpiresIn time.Duration
}

// Verification is the outcome of an accepted code
type Verification struct {
	Email   string
	Purpose Purpose

	// Set only for PurposePasswordReset
	VerificationToken string
	TokenExpiresAt    time.Time
}
