package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// revokedMarkerFallbackTTL is used when the token key has no TTL left to copy
const revokedMarkerFallbackTTL = 7 * 24 * time.Hour

// RedisRepository keeps refresh tokens as hashes with a TTL matching their expiry
type RedisRepository struct {
	client redis.UniversalClient
}

func NewRedisRepository(client redis.UniversalClient) *RedisRepository {
	return &RedisRepository{client: client}
}

func getTokenKey(tokenHash string) string {
	return fmt.Sprintf("refresh_token:%s", tokenHash)
}

func getRevokedKey(tokenHash string) string {
	return fmt.Sprintf("refresh_token:revoked:%s", tokenHash)
}

func getUserTokensKey(userID uuid.UUID) string {
	return fmt.Sprintf("user_tokens:%s", userID.String())
}

// StoreRefreshToken stores a refresh token and indexes it under its user
func (r *RedisRepository) StoreRefreshToken(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) error {
	tokenHash := hashToken(token)
	tokenKey := getTokenKey(tokenHash)
	userTokensKey := getUserTokensKey(userID)

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return fmt.Errorf("token expiration time is in the past")
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, tokenKey, map[string]any{
			"id":         uuid.NewString(),
			"user_id":    userID.String(),
			"expires_at": expiresAt.Unix(),
			"created_at": time.Now().Unix(),
		})
		pipe.Expire(ctx, tokenKey, ttl)

		// The index lives as long as the newest token
		pipe.SAdd(ctx, userTokensKey, tokenHash)
		pipe.Expire(ctx, userTokensKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}

	return nil
}

// GetRefreshToken retrieves a live refresh token
func (r *RedisRepository) GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error) {
	tokenHash := hashToken(token)

	revoked, err := r.client.Exists(ctx, getRevokedKey(tokenHash)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check revocation: %w", err)
	}
	if revoked > 0 {
		return nil, ErrRefreshTokenRevoked
	}

	data, err := r.client.HGetAll(ctx, getTokenKey(tokenHash)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrRefreshTokenNotFound
	}

	userID, err := uuid.Parse(data["user_id"])
	if err != nil {
		return nil, ErrInvalidToken
	}
	id, _ := uuid.Parse(data["id"])

	expiresAt := parseUnix(data["expires_at"])
	if !time.Now().Before(expiresAt) {
		return nil, ErrRefreshTokenExpired
	}

	return &RefreshToken{
		ID:        id,
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: parseUnix(data["created_at"]),
	}, nil
}

// RevokeRefreshToken marks a refresh token as revoked for the rest of its lifetime.
// Only the first caller succeeds; later ones get ErrRefreshTokenRevoked.
func (r *RedisRepository) RevokeRefreshToken(ctx context.Context, token string) error {
	tokenHash := hashToken(token)

	ttl, err := r.client.TTL(ctx, getTokenKey(tokenHash)).Result()
	if err != nil {
		return fmt.Errorf("failed to get token TTL: %w", err)
	}
	// -2 means the key does not exist
	if ttl == -2 {
		return ErrRefreshTokenNotFound
	}

	set, err := r.client.SetNX(ctx, getRevokedKey(tokenHash), "1", markerTTL(ttl)).Result()
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	if !set {
		return ErrRefreshTokenRevoked
	}

	return nil
}

// RevokeAllUserTokens revokes every refresh token issued to a user
func (r *RedisRepository) RevokeAllUserTokens(ctx context.Context, userID uuid.UUID) error {
	tokenHashes, err := r.client.SMembers(ctx, getUserTokensKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("failed to get user tokens: %w", err)
	}
	if len(tokenHashes) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for _, tokenHash := range tokenHashes {
		ttl, err := r.client.TTL(ctx, getTokenKey(tokenHash)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to get token TTL: %w", err)
		}
		if ttl == -2 {
			continue
		}
		pipe.Set(ctx, getRevokedKey(tokenHash), "1", markerTTL(ttl))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to revoke all user tokens: %w", err)
	}

	return nil
}

// CleanupExpiredTokens is a no-op; key TTLs expire tokens in Redis
func (r *RedisRepository) CleanupExpiredTokens(ctx context.Context) error {
	return nil
}

func markerTTL(ttl time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	return revokedMarkerFallbackTTL
}

func parseUnix(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(n, 0)
}
