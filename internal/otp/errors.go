package otp

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidPurpose           = errors.New("invalid otp purpose")
	ErrRateLimited              = errors.New("an otp was requested recently, please wait before requesting another")
	ErrInvalidCode              = errors.New("invalid or expired otp")
	ErrTooManyAttempts          = errors.New("too many failed attempts, please request a new otp")
	ErrDeliveryFailed           = errors.New("failed to deliver otp")
	ErrInvalidVerificationToken = errors.New("invalid or expired verification token")
	ErrNotFound                 = errors.New("otp record not found")
	ErrConflict                 = errors.New("otp record changed concurrently")
)

// RateLimitError carries how long the caller has to wait
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s (retry after %s)", ErrRateLimited.Error(), e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
