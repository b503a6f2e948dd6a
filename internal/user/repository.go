package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"github.com/bharatgpt/identity-api/internal/database"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already exists")
)

// Repository handles user data persistence
type Repository struct {
	db  *bun.DB
	now func() time.Time
}

func NewRepository(db *bun.DB) *Repository {
	return &Repository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts a new user
func (r *Repository) Create(ctx context.Context, nu NewUser) (*User, error) {
	now := r.now()
	provider := nu.Provider
	if provider == "" {
		provider = ProviderLocal
	}

	dbUser := &database.User{
		ID:            uuid.New(),
		Email:         NormalizeEmail(nu.Email),
		Name:          strings.TrimSpace(nu.Name),
		PasswordHash:  optional(nu.PasswordHash),
		Mobile:        optional(nu.Mobile),
		EmailVerified: nu.EmailVerified,
		Provider:      provider,
		ProviderID:    optional(nu.ProviderID),
		Image:         optional(nu.Image),
		Role:          RoleUser,
		CreatedAt:     now,
		UpdatedAt:     now,
		LastLogin:     &now,
	}

	if _, err := r.db.NewInsert().Model(dbUser).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByEmail retrieves a user by email
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where("email = ?", NormalizeEmail(email)).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByID retrieves a user by ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// UpdatePassword stores a new password hash and stamps password_reset_at
func (r *Repository) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	now := r.now()
	return r.updateOne(ctx, "update password", userID, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("password_hash = ?", passwordHash).
			Set("password_reset_at = ?", now).
			Set("updated_at = ?", now)
	})
}

// TouchLastLogin records a successful sign-in
func (r *Repository) TouchLastLogin(ctx context.Context, userID uuid.UUID) error {
	now := r.now()
	return r.updateOne(ctx, "update last login", userID, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("last_login = ?", now).
			Set("updated_at = ?", now)
	})
}

// UpdateOAuthProfile refreshes provider-sourced fields on a returning OAuth sign-in.
// The password hash and provider are left as they are.
func (r *Repository) UpdateOAuthProfile(ctx context.Context, userID uuid.UUID, providerID, image string) error {
	now := r.now()
	return r.updateOne(ctx, "update oauth profile", userID, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		q = q.
			Set("provider_id = ?", optional(providerID)).
			Set("email_verified = ?", true).
			Set("last_login = ?", now).
			Set("updated_at = ?", now)
		if image != "" {
			q = q.Set("image = ?", image)
		}
		return q
	})
}

// UpdateProfile applies user-editable profile fields and returns the fresh record
func (r *Repository) UpdateProfile(ctx context.Context, userID uuid.UUID, update ProfileUpdate) (*User, error) {
	err := r.updateOne(ctx, "update profile", userID, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		if update.Name != nil {
			q = q.Set("name = ?", strings.TrimSpace(*update.Name))
		}
		if update.Mobile != nil {
			q = q.Set("mobile = ?", optional(strings.TrimSpace(*update.Mobile)))
		}
		return q.Set("updated_at = ?", r.now())
	})
	if err != nil {
		return nil, err
	}

	return r.GetByID(ctx, userID)
}

func (r *Repository) updateOne(ctx context.Context, op string, userID uuid.UUID, set func(*bun.UpdateQuery) *bun.UpdateQuery) error {
	q := r.db.NewUpdate().Model((*database.User)(nil))
	result, err := set(q).Where("id = ?", userID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// isUniqueViolation recognises duplicate-key errors from Postgres and SQLite
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// mapDBUserToModel converts database model to domain model
func mapDBUserToModel(dbu *database.User) *User {
	return &User{
		ID:              dbu.ID,
		Email:           dbu.Email,
		Name:            dbu.Name,
		PasswordHash:    deref(dbu.PasswordHash),
		Mobile:          deref(dbu.Mobile),
		EmailVerified:   dbu.EmailVerified,
		Provider:        dbu.Provider,
		ProviderID:      deref(dbu.ProviderID),
		Image:           deref(dbu.Image),
		Role:            dbu.Role,
		CreatedAt:       dbu.CreatedAt,
		UpdatedAt:       dbu.UpdatedAt,
		LastLogin:       dbu.LastLogin,
		PasswordResetAt: dbu.PasswordResetAt,
	}
}
