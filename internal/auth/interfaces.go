package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bharatgpt/identity-api/internal/user"
)

// TokenIssuer mints signed session tokens
type TokenIssuer interface {
	CreateToken(userID uuid.UUID, email string, duration time.Duration) (string, error)
}

// TokenVerifier validates a session token. Implementations return
// ErrExpiredToken or ErrInvalidToken on failure.
type TokenVerifier interface {
	VerifyToken(tokenStr string) (*TokenClaims, error)
}

// TokenService defines the interface for token creation and validation.
// Implementations include PasetoService (PASETO v4.local) and JWTService (HS256).
type TokenService interface {
	TokenIssuer
	TokenVerifier
}

// UserRepository is the subset of the credential store the auth flows use
type UserRepository interface {
	Create(ctx context.Context, nu user.NewUser) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
	TouchLastLogin(ctx context.Context, userID uuid.UUID) error
	UpdateOAuthProfile(ctx context.Context, userID uuid.UUID, providerID, image string) error
	UpdateProfile(ctx context.Context, userID uuid.UUID, update user.ProfileUpdate) (*user.User, error)
}

// RefreshTokenRepository defines the interface for refresh token storage
type RefreshTokenRepository interface {
	StoreRefreshToken(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, token string) error
	RevokeAllUserTokens(ctx context.Context, userID uuid.UUID) error
	CleanupExpiredTokens(ctx context.Context) error
}

// Mailer sends the account notifications that follow a completed flow
type Mailer interface {
	SendWelcome(ctx context.Context, to, name string) error
	SendPasswordChanged(ctx context.Context, to, name string) error
}

// LoginRecorder counts session issuance attempts
type LoginRecorder interface {
	Login(method, result string)
}

// OAuthProvider runs the authorization code flow against an identity provider
type OAuthProvider interface {
	GetLoginURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}
