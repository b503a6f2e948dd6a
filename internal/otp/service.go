package otp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/bharatgpt/identity-api/internal/logging"
)

const codeLength = 6

// Config controls code lifetimes and limits
type Config struct {
	LoginTTL         time.Duration // login and registration codes
	PasswordResetTTL time.Duration
	ResendCooldown   time.Duration
	ResetTokenTTL    time.Duration
	MaxAttempts      int
}

// DefaultConfig returns the production lifetimes
func DefaultConfig() Config {
	return Config{
		LoginTTL:         5 * time.Minute,
		PasswordResetTTL: 10 * time.Minute,
		ResendCooldown:   60 * time.Second,
		ResetTokenTTL:    15 * time.Minute,
		MaxAttempts:      5,
	}
}

// TTL returns how long a code issued for purpose stays valid
func (c Config) TTL(purpose Purpose) time.Duration {
	if purpose == PurposePasswordReset {
		return c.PasswordResetTTL
	}
	return c.LoginTTL
}

// Notifier delivers a code to its owner. A returned error means the code was not sent.
type Notifier interface {
	SendOTP(ctx context.Context, to, purpose, code string, expiresIn time.Duration) error
}

// Recorder receives flow counters; metrics.Collector implements it
type Recorder interface {
	OTPIssued(purpose string)
	OTPRateLimited(purpose string)
	OTPDeliveryFailed(purpose string)
	OTPVerification(purpose, result string)
}

// Service issues and verifies one-time codes
type Service struct {
	store    Store
	notifier Notifier
	cfg      Config
	logger   *logging.Logger
	recorder Recorder
	now      func() time.Time
	random   io.Reader
}

func NewService(store Store, notifier Notifier, cfg Config, logger *logging.Logger, recorder Recorder) *Service {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		recorder: recorder,
		now:      time.Now,
		random:   rand.Reader,
	}
}

// Config returns the lifetimes the service was built with
func (s *Service) Config() Config {
	return s.cfg
}

// Issue generates a code for (email, purpose), stores it and delivers it.
// Callers are expected to have normalized the email and done any existence checks.
func (s *Service) Issue(ctx context.Context, email string, purpose Purpose) (*Issued, error) {
	code, err := s.generateCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate otp: %w", err)
	}

	now := s.now()
	ttl := s.cfg.TTL(purpose)
	rec := &Record{
		Email:     email,
		Purpose:   purpose,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	err = s.store.Update(ctx, email, purpose, func(current *Record) (Change, error) {
		if current != nil && !current.Expired(now) {
			if age := now.Sub(current.CreatedAt); age < s.cfg.ResendCooldown {
				return Change{}, &RateLimitError{RetryAfter: s.cfg.ResendCooldown - age}
			}
		}
		// Replacing the key drops any previous code for the same purpose
		return Change{Put: rec, TTL: ttl}, nil
	})
	if err != nil {
		if isRateLimited(err) {
			s.recorder.OTPRateLimited(string(purpose))
		}
		return nil, err
	}

	if err := s.notifier.SendOTP(ctx, email, string(purpose), code, ttl); err != nil {
		s.recorder.OTPDeliveryFailed(string(purpose))
		if rbErr := s.discard(ctx, email, purpose, code); rbErr != nil {
			s.logger.Error("failed to roll back undelivered otp", "email", email, "purpose", purpose, "error", rbErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	s.recorder.OTPIssued(string(purpose))

	return &Issued{
		Email:     email,
		Purpose:   purpose,
		ExpiresAt: rec.ExpiresAt,
		ExpiresIn: ttl,
	}, nil
}

// discard deletes the record only if it still holds code, so a newer request is never undone
func (s *Service) discard(ctx context.Context, email string, purpose Purpose, code string) error {
	return s.store.Update(ctx, email, purpose, func(current *Record) (Change, error) {
		if current == nil || current.Code != code {
			return Change{}, nil
		}
		return Change{Delete: true}, nil
	})
}

// Verify checks a submitted code. Login and registration codes are consumed on
// success; password reset codes are marked verified and exchanged for a
// single-use verification token.
func (s *Service) Verify(ctx context.Context, email string, purpose Purpose, code string) (*Verification, error) {
	now := s.now()
	result := &Verification{Email: email, Purpose: purpose}

	var token string
	if purpose == PurposePasswordReset {
		var err error
		token, err = s.generateToken()
		if err != nil {
			return nil, fmt.Errorf("failed to generate verification token: %w", err)
		}
	}

	err := s.store.Update(ctx, email, purpose, func(current *Record) (Change, error) {
		if current == nil || current.Verified {
			return Change{}, ErrInvalidCode
		}
		if current.Expired(now) {
			return Change{Delete: true}, ErrInvalidCode
		}

		if subtle.ConstantTimeCompare([]byte(current.Code), []byte(code)) != 1 {
			updated := *current
			updated.Attempts++
			if updated.Attempts >= s.cfg.MaxAttempts {
				return Change{Delete: true}, ErrTooManyAttempts
			}
			return Change{Put: &updated, TTL: current.ExpiresAt.Sub(now)}, ErrInvalidCode
		}

		if purpose != PurposePasswordReset {
			return Change{Delete: true}, nil
		}

		verified := *current
		verified.Verified = true
		verified.VerifiedAt = &now
		verified.VerificationTokenHash = hashToken(token)
		return Change{Put: &verified, TTL: s.cfg.ResetTokenTTL}, nil
	})
	if err != nil {
		s.recorder.OTPVerification(string(purpose), verificationResult(err))
		return nil, err
	}

	s.recorder.OTPVerification(string(purpose), "success")

	if purpose == PurposePasswordReset {
		result.VerificationToken = token
		result.TokenExpiresAt = now.Add(s.cfg.ResetTokenTTL)
	}

	return result, nil
}

// Redeem consumes a password reset verification token. It succeeds at most once
// per verified code and only within ResetTokenTTL of the verification.
func (s *Service) Redeem(ctx context.Context, email, token string) error {
	if token == "" {
		return ErrInvalidVerificationToken
	}

	now := s.now()
	provided := hashToken(token)

	return s.store.Update(ctx, email, PurposePasswordReset, func(current *Record) (Change, error) {
		if current == nil || !current.Verified || current.VerifiedAt == nil {
			return Change{}, ErrInvalidVerificationToken
		}
		if !now.Before(current.VerifiedAt.Add(s.cfg.ResetTokenTTL)) {
			return Change{Delete: true}, ErrInvalidVerificationToken
		}
		if subtle.ConstantTimeCompare([]byte(current.VerificationTokenHash), []byte(provided)) != 1 {
			return Change{}, ErrInvalidVerificationToken
		}
		return Change{Delete: true}, nil
	})
}

// generateCode returns a uniformly random code in [100000, 999999]
func (s *Service) generateCode() (string, error) {
	n, err := rand.Int(s.random, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeLength, n.Int64()+100000), nil
}

func (s *Service) generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(s.random, b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func isRateLimited(err error) bool {
	var rlErr *RateLimitError
	return errors.As(err, &rlErr)
}

func verificationResult(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCode):
		return "invalid"
	case errors.Is(err, ErrTooManyAttempts):
		return "locked"
	default:
		return "error"
	}
}

type nopRecorder struct{}

func (nopRecorder) OTPIssued(string)               {}
func (nopRecorder) OTPRateLimited(string)          {}
func (nopRecorder) OTPDeliveryFailed(string)       {}
func (nopRecorder) OTPVerification(string, string) {}
