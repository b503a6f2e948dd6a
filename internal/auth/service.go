package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bharatgpt/identity-api/internal/logging"
	"github.com/bharatgpt/identity-api/internal/otp"
	"github.com/bharatgpt/identity-api/internal/user"
)

var (
	ErrInvalidCredentials     = errors.New("invalid email or password")
	ErrEmailRequired          = errors.New("email is required")
	ErrInvalidEmailFormat     = errors.New("invalid email format")
	ErrNameRequired           = errors.New("name is required")
	ErrInvalidMobile          = errors.New("invalid mobile number")
	ErrOTPRequired            = errors.New("otp is required")
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidLoginMethod     = errors.New("unsupported login method")
	ErrUserNotFound           = errors.New("user not found")
)

// Indian mobile numbers, optionally prefixed with the country code
var mobilePattern = regexp.MustCompile(`^(\+91[\-\s]?)?[6-9]\d{9}$`)

const mailTimeout = 30 * time.Second

// Login methods reported to the recorder
const (
	MethodPassword     = "password"
	MethodOTP          = "otp"
	MethodRegistration = "registration"
	MethodGoogle       = "google"
)

// OTPRequest is the outcome of a code request. Delivered is false when the
// request was answered neutrally without creating a code.
type OTPRequest struct {
	Email     string
	Purpose   otp.Purpose
	ExpiresIn time.Duration
	Delivered bool
}

// VerifyOTPInput carries a submitted code plus the registration fields
type VerifyOTPInput struct {
	Email    string
	Code     string
	Purpose  string
	Name     string
	Password string
	Mobile   string
}

// VerifyOTPResult holds a session for login and registration codes and a
// verification token for password reset codes
type VerifyOTPResult struct {
	Purpose           otp.Purpose
	Session           *Session
	VerificationToken string
	TokenExpiresAt    time.Time
}

// RegistrationInput is everything needed to finish a sign-up
type RegistrationInput struct {
	Email    string
	Code     string
	Name     string
	Password string
	Mobile   string
}

// Service handles authentication business logic
type Service struct {
	users                UserRepository
	refreshTokens        RefreshTokenRepository
	otps                 *otp.Service
	tokens               TokenIssuer
	hasher               *PasswordHasher
	mailer               Mailer
	logger               *logging.Logger
	recorder             LoginRecorder
	accessTokenDuration  time.Duration
	refreshTokenDuration time.Duration
	background           func(func())
}

func NewService(
	users UserRepository,
	refreshTokens RefreshTokenRepository,
	otps *otp.Service,
	tokens TokenIssuer,
	hasher *PasswordHasher,
	mailer Mailer,
	logger *logging.Logger,
	recorder LoginRecorder,
	accessTokenDuration time.Duration,
	refreshTokenDuration time.Duration,
) *Service {
	if recorder == nil {
		recorder = nopLoginRecorder{}
	}
	return &Service{
		users:                users,
		refreshTokens:        refreshTokens,
		otps:                 otps,
		tokens:               tokens,
		hasher:               hasher,
		mailer:               mailer,
		logger:               logger,
		recorder:             recorder,
		accessTokenDuration:  accessTokenDuration,
		refreshTokenDuration: refreshTokenDuration,
		background:           func(f func()) { go f() },
	}
}

// RequestOTP issues a code for purpose after the per-purpose existence check.
// Registration refuses known addresses; login and password reset answer
// unknown addresses neutrally without creating a code.
func (s *Service) RequestOTP(ctx context.Context, email, purpose string) (*OTPRequest, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	p, err := otp.ParsePurpose(purpose)
	if err != nil {
		return nil, err
	}

	exists, err := s.userExists(ctx, email)
	if err != nil {
		return nil, err
	}

	req := &OTPRequest{
		Email:     email,
		Purpose:   p,
		ExpiresIn: s.otps.Config().TTL(p),
	}

	switch p {
	case otp.PurposeRegistration:
		if exists {
			return nil, ErrEmailAlreadyRegistered
		}
	case otp.PurposeLogin, otp.PurposePasswordReset:
		if !exists {
			s.logger.Debug("otp requested for unknown email", "purpose", p)
			return req, nil
		}
	}

	issued, err := s.otps.Issue(ctx, email, p)
	if err != nil {
		return nil, err
	}

	req.ExpiresIn = issued.ExpiresIn
	req.Delivered = true
	return req, nil
}

// VerifyOTP dispatches a submitted code to the flow its purpose belongs to
func (s *Service) VerifyOTP(ctx context.Context, in VerifyOTPInput) (*VerifyOTPResult, error) {
	p, err := otp.ParsePurpose(in.Purpose)
	if err != nil {
		return nil, err
	}

	switch p {
	case otp.PurposeRegistration:
		session, err := s.CompleteRegistration(ctx, RegistrationInput{
			Email:    in.Email,
			Code:     in.Code,
			Name:     in.Name,
			Password: in.Password,
			Mobile:   in.Mobile,
		})
		if err != nil {
			return nil, err
		}
		return &VerifyOTPResult{Purpose: p, Session: session}, nil

	case otp.PurposeLogin:
		session, err := s.LoginWithOTP(ctx, in.Email, in.Code)
		if err != nil {
			return nil, err
		}
		return &VerifyOTPResult{Purpose: p, Session: session}, nil

	default:
		email, err := normalizeEmail(in.Email)
		if err != nil {
			return nil, err
		}
		if in.Code == "" {
			return nil, ErrOTPRequired
		}
		v, err := s.otps.Verify(ctx, email, p, in.Code)
		if err != nil {
			return nil, err
		}
		return &VerifyOTPResult{
			Purpose:           p,
			VerificationToken: v.VerificationToken,
			TokenExpiresAt:    v.TokenExpiresAt,
		}, nil
	}
}

// CompleteRegistration consumes a registration code and creates a verified local account.
// Input is validated before the code is touched so a typo does not burn it.
func (s *Service) CompleteRegistration(ctx context.Context, in RegistrationInput) (*Session, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if in.Code == "" {
		return nil, ErrOTPRequired
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	mobile, err := normalizeMobile(in.Mobile)
	if err != nil {
		return nil, err
	}

	exists, err := s.userExists(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailAlreadyRegistered
	}

	// Hash first so only the insert can fail once the code is consumed
	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	if _, err := s.otps.Verify(ctx, email, otp.PurposeRegistration, in.Code); err != nil {
		s.recorder.Login(MethodRegistration, "rejected")
		return nil, err
	}

	newUser, err := s.users.Create(ctx, user.NewUser{
		Email:         email,
		Name:          name,
		PasswordHash:  passwordHash,
		Mobile:        mobile,
		Provider:      user.ProviderLocal,
		EmailVerified: true,
	})
	if err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			return nil, ErrEmailAlreadyRegistered
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user registered", "user_id", newUser.ID)
	return s.issueSession(ctx, newUser, MethodRegistration)
}

// Login authenticates a user by password
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = user.NormalizeEmail(email)
	if email == "" || password == "" {
		s.recorder.Login(MethodPassword, "rejected")
		return nil, ErrInvalidCredentials
	}

	existingUser, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.recorder.Login(MethodPassword, "rejected")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	// Accounts created through Google have no password and always fail here
	if !s.hasher.Verify(existingUser.PasswordHash, password) {
		s.recorder.Login(MethodPassword, "rejected")
		return nil, ErrInvalidCredentials
	}

	return s.issueSession(ctx, existingUser, MethodPassword)
}

// LoginWithOTP consumes a login code and signs the user in without a password
func (s *Service) LoginWithOTP(ctx context.Context, email, code string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if code == "" {
		return nil, ErrOTPRequired
	}

	if _, err := s.otps.Verify(ctx, email, otp.PurposeLogin, code); err != nil {
		s.recorder.Login(MethodOTP, "rejected")
		return nil, err
	}

	existingUser, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.recorder.Login(MethodOTP, "rejected")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return s.issueSession(ctx, existingUser, MethodOTP)
}

// ResetPassword redeems a verification token and stores the new password.
// Existing refresh tokens are revoked and a confirmation mail is sent.
func (s *Service) ResetPassword(ctx context.Context, email, newPassword, verificationToken string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := s.otps.Redeem(ctx, email, verificationToken); err != nil {
		return err
	}

	existingUser, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, existingUser.ID, passwordHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if err := s.refreshTokens.RevokeAllUserTokens(ctx, existingUser.ID); err != nil {
		s.logger.Warn("failed to revoke refresh tokens after password reset", "user_id", existingUser.ID, "error", err)
	}

	s.sendMail(ctx, "password changed", func(mailCtx context.Context) error {
		return s.mailer.SendPasswordChanged(mailCtx, existingUser.Email, existingUser.Name)
	})

	s.logger.Info("password reset", "user_id", existingUser.ID)
	return nil
}

// SignInWithOAuth creates the account on a first provider sign-in and refreshes
// provider fields on later ones. The password hash is never touched.
func (s *Service) SignInWithOAuth(ctx context.Context, info *OAuthUserInfo) (*Session, error) {
	email, err := normalizeEmail(info.Email)
	if err != nil {
		return nil, err
	}

	existingUser, err := s.users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, user.ErrNotFound):
		created, createErr := s.users.Create(ctx, user.NewUser{
			Email:         email,
			Name:          info.Name,
			Provider:      user.ProviderGoogle,
			ProviderID:    info.ProviderUserID,
			Image:         info.Picture,
			EmailVerified: true,
		})
		if errors.Is(createErr, user.ErrDuplicateEmail) {
			// Lost a race with a concurrent first sign-in
			return s.SignInWithOAuth(ctx, info)
		}
		if createErr != nil {
			return nil, fmt.Errorf("failed to create user: %w", createErr)
		}

		s.sendMail(ctx, "welcome", func(mailCtx context.Context) error {
			return s.mailer.SendWelcome(mailCtx, created.Email, created.Name)
		})

		session, err := s.issueSession(ctx, created, MethodGoogle)
		if err != nil {
			return nil, err
		}
		session.Created = true
		return session, nil

	case err != nil:
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := s.users.UpdateOAuthProfile(ctx, existingUser.ID, info.ProviderUserID, info.Picture); err != nil {
		return nil, fmt.Errorf("failed to update oauth profile: %w", err)
	}

	refreshed, err := s.users.GetByID(ctx, existingUser.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload user: %w", err)
	}

	return s.issueSession(ctx, refreshed, MethodGoogle)
}

// RefreshAccessToken rotates a refresh token and returns a fresh pair
func (s *Service) RefreshAccessToken(ctx context.Context, refreshToken string) (*AuthTokens, error) {
	rt, err := s.refreshTokens.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrRefreshTokenNotFound) {
			return nil, ErrInvalidToken
		}
		if errors.Is(err, ErrRefreshTokenRevoked) || errors.Is(err, ErrRefreshTokenExpired) || errors.Is(err, ErrInvalidToken) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	if rt.IsRevoked() {
		return nil, ErrRefreshTokenRevoked
	}
	if rt.IsExpired() {
		return nil, ErrRefreshTokenExpired
	}

	// Revoke before issuing so a stolen token cannot be replayed
	if err := s.refreshTokens.RevokeRefreshToken(ctx, refreshToken); err != nil {
		// Losing a concurrent rotation lands here
		if errors.Is(err, ErrRefreshTokenNotFound) || errors.Is(err, ErrRefreshTokenRevoked) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to revoke old refresh token: %w", err)
	}

	existingUser, err := s.users.GetByID(ctx, rt.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return s.generateTokens(ctx, existingUser.ID, existingUser.Email)
}

// RevokeRefreshToken revokes a refresh token
func (s *Service) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	return s.refreshTokens.RevokeRefreshToken(ctx, refreshToken)
}

// GetProfile returns the signed-in user's account
func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// UpdateProfile changes the name and mobile number; nil fields are kept.
// An empty mobile clears it.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, name, mobile *string) (*user.User, error) {
	var update user.ProfileUpdate

	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return nil, ErrNameRequired
		}
		update.Name = &trimmed
	}
	if mobile != nil {
		normalized, err := normalizeMobile(*mobile)
		if err != nil {
			return nil, err
		}
		update.Mobile = &normalized
	}

	u, err := s.users.UpdateProfile(ctx, userID, update)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return u, nil
}

func (s *Service) issueSession(ctx context.Context, u *user.User, method string) (*Session, error) {
	if err := s.users.TouchLastLogin(ctx, u.ID); err != nil {
		s.logger.Warn("failed to record last login", "user_id", u.ID, "error", err)
	} else {
		now := time.Now().UTC()
		u.LastLogin = &now
	}

	tokens, err := s.generateTokens(ctx, u.ID, u.Email)
	if err != nil {
		s.recorder.Login(method, "error")
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	s.recorder.Login(method, "success")
	return &Session{User: u, Tokens: tokens}, nil
}

// generateTokens creates both access and refresh tokens
func (s *Service) generateTokens(ctx context.Context, userID uuid.UUID, email string) (*AuthTokens, error) {
	accessToken, err := s.tokens.CreateToken(userID, email, s.accessTokenDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to create access token: %w", err)
	}

	refreshToken, err := generateRandomToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	expiresAt := time.Now().Add(s.refreshTokenDuration)
	if err := s.refreshTokens.StoreRefreshToken(ctx, userID, refreshToken, expiresAt); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTokenDuration.Seconds()),
	}, nil
}

// sendMail delivers a notification off the request path. Failures are logged only.
func (s *Service) sendMail(ctx context.Context, kind string, send func(context.Context) error) {
	mailCtx := context.WithoutCancel(ctx)
	s.background(func() {
		ctx, cancel := context.WithTimeout(mailCtx, mailTimeout)
		defer cancel()
		if err := send(ctx); err != nil {
			s.logger.Warn("failed to send notification email", "kind", kind, "error", err)
		}
	})
}

func (s *Service) userExists(ctx context.Context, email string) (bool, error) {
	_, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, user.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to look up user: %w", err)
}

func normalizeEmail(email string) (string, error) {
	email = user.NormalizeEmail(email)
	if email == "" {
		return "", ErrEmailRequired
	}
	if len(email) > 254 {
		return "", ErrInvalidEmailFormat
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmailFormat
	}
	return email, nil
}

func normalizeMobile(mobile string) (string, error) {
	mobile = strings.TrimSpace(mobile)
	if mobile == "" {
		return "", nil
	}
	if !mobilePattern.MatchString(mobile) {
		return "", ErrInvalidMobile
	}
	return mobile, nil
}

// generateRandomToken creates a cryptographically secure random token
func generateRandomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

type nopLoginRecorder struct{}

func (nopLoginRecorder) Login(string, string) {}
