package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the row stored in the users table
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID              uuid.UUID  `bun:"id,pk,type:uuid"`
	Email           string     `bun:"email,notnull,unique"`
	Name            string     `bun:"name,notnull"`
	PasswordHash    *string    `bun:"password_hash"`
	Mobile          *string    `bun:"mobile"`
	EmailVerified   bool       `bun:"email_verified,notnull"`
	Provider        string     `bun:"provider,notnull"`
	ProviderID      *string    `bun:"provider_id"`
	Image           *string    `bun:"image"`
	Role            string     `bun:"role,notnull"`
	CreatedAt       time.Time  `bun:"created_at,notnull"`
	UpdatedAt       time.Time  `bun:"updated_at,notnull"`
	LastLogin       *time.Time `bun:"last_login"`
	PasswordResetAt *time.Time `bun:"password_reset_at"`
}

// RefreshToken is the row stored in the refresh_tokens table
type RefreshToken struct {
	bun.BaseModel `bun:"table:refresh_tokens,alias:rt"`

	ID        uuid.UUID  `bun:"id,pk,type:uuid"`
	UserID    uuid.UUID  `bun:"user_id,type:uuid,notnull"`
	TokenHash string     `bun:"token_hash,notnull,unique"`
	ExpiresAt time.Time  `bun:"expires_at,notnull"`
	CreatedAt time.Time  `bun:"created_at,notnull"`
	RevokedAt *time.Time `bun:"revoked_at"`
}
