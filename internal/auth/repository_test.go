package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"

	"github.com/bharatgpt/identity-api/internal/database"
)

func newSQLRefreshRepository(t *testing.T) *Repository {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	db := bun.NewDB(sqlDB, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.CreateSchema(context.Background(), db))
	return NewRepository(db)
}

func newRedisRefreshRepository(t *testing.T) *RedisRepository {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRepository(client)
}

// Both stores must behave the same from the service's point of view
func TestRefreshTokenRepositories(t *testing.T) {
	stores := map[string]func(t *testing.T) RefreshTokenRepository{
		"postgres": func(t *testing.T) RefreshTokenRepository { return newSQLRefreshRepository(t) },
		"redis":    func(t *testing.T) RefreshTokenRepository { return newRedisRefreshRepository(t) },
	}

	for name, build := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("store and get", func(t *testing.T) {
				repo := build(t)
				userID := uuid.New()
				require.NoError(t, repo.StoreRefreshToken(ctx, userID, "token-a", time.Now().Add(time.Hour)))

				rt, err := repo.GetRefreshToken(ctx, "token-a")
				require.NoError(t, err)
				assert.Equal(t, userID, rt.UserID)
				assert.Equal(t, hashToken("token-a"), rt.TokenHash)
				assert.True(t, rt.IsValid())

				_, err = repo.GetRefreshToken(ctx, "token-b")
				assert.ErrorIs(t, err, ErrRefreshTokenNotFound)
			})

			t.Run("revoke one", func(t *testing.T) {
				repo := build(t)
				require.NoError(t, repo.StoreRefreshToken(ctx, uuid.New(), "token-a", time.Now().Add(time.Hour)))
				require.NoError(t, repo.RevokeRefreshToken(ctx, "token-a"))

				rt, err := repo.GetRefreshToken(ctx, "token-a")
				if err == nil {
					assert.True(t, rt.IsRevoked())
				} else {
					assert.ErrorIs(t, err, ErrRefreshTokenRevoked)
				}

				// a second revoke must fail so rotation cannot be replayed
				err = repo.RevokeRefreshToken(ctx, "token-a")
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrRefreshTokenRevoked) || errors.Is(err, ErrRefreshTokenNotFound), err)

				assert.ErrorIs(t, repo.RevokeRefreshToken(ctx, "missing"), ErrRefreshTokenNotFound)
			})

			t.Run("revoke all for a user", func(t *testing.T) {
				repo := build(t)
				userID, other := uuid.New(), uuid.New()
				require.NoError(t, repo.StoreRefreshToken(ctx, userID, "token-1", time.Now().Add(time.Hour)))
				require.NoError(t, repo.StoreRefreshToken(ctx, userID, "token-2", time.Now().Add(time.Hour)))
				require.NoError(t, repo.StoreRefreshToken(ctx, other, "token-3", time.Now().Add(time.Hour)))

				require.NoError(t, repo.RevokeAllUserTokens(ctx, userID))

				for _, tok := range []string{"token-1", "token-2"} {
					rt, err := repo.GetRefreshToken(ctx, tok)
					if err == nil {
						assert.False(t, rt.IsValid(), tok)
					} else {
						assert.ErrorIs(t, err, ErrRefreshTokenRevoked, tok)
					}
				}

				rt, err := repo.GetRefreshToken(ctx, "token-3")
				require.NoError(t, err)
				assert.True(t, rt.IsValid())
			})
		})
	}
}

func TestRepository_CleanupExpiredTokens(t *testing.T) {
	repo := newSQLRefreshRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.StoreRefreshToken(ctx, uuid.New(), "stale", time.Now().Add(time.Hour)))
	require.NoError(t, repo.StoreRefreshToken(ctx, uuid.New(), "fresh", time.Now().Add(3*time.Hour)))

	repo.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	require.NoError(t, repo.CleanupExpiredTokens(ctx))

	_, err := repo.GetRefreshToken(ctx, "stale")
	assert.ErrorIs(t, err, ErrRefreshTokenNotFound)
	_, err = repo.GetRefreshToken(ctx, "fresh")
	assert.NoError(t, err)
}

func TestRedisRepository_RejectsPastExpiry(t *testing.T) {
	repo := newRedisRefreshRepository(t)
	err := repo.StoreRefreshToken(context.Background(), uuid.New(), "late", time.Now().Add(-time.Second))
	assert.Error(t, err)
}
