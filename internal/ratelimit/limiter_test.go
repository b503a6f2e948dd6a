package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, limit int) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLimiterWithWindow(client, limit, time.Minute), mr
}

func TestLimiter_ExceedsAfterLimit(t *testing.T) {
	l, _ := newTestLimiter(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		exceeded, err := l.CheckIPRateLimitWithPurpose(ctx, "10.0.0.1", "otp_send")
		require.NoError(t, err)
		require.False(t, exceeded)
		require.NoError(t, l.RecordIPRequestWithPurpose(ctx, "10.0.0.1", "otp_send"))
	}

	exceeded, err := l.CheckIPRateLimitWithPurpose(ctx, "10.0.0.1", "otp_send")
	require.NoError(t, err)
	assert.True(t, exceeded)

	// budgets are per purpose and per ip
	exceeded, err = l.CheckIPRateLimitWithPurpose(ctx, "10.0.0.1", "login")
	require.NoError(t, err)
	assert.False(t, exceeded)

	exceeded, err = l.CheckIPRateLimit(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.False(t, exceeded)
}

func TestLimiter_WindowExpires(t *testing.T) {
	l, mr := newTestLimiter(t, 1)
	ctx := context.Background()

	require.NoError(t, l.RecordIPRequest(ctx, "10.0.0.1"))
	exceeded, err := l.CheckIPRateLimit(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.True(t, exceeded)

	mr.FastForward(time.Minute + time.Second)

	exceeded, err = l.CheckIPRateLimit(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, exceeded)
}

func TestLimiter_WindowStartsOnFirstRequest(t *testing.T) {
	l, mr := newTestLimiter(t, 5)
	ctx := context.Background()

	require.NoError(t, l.RecordIPRequestWithPurpose(ctx, "10.0.0.1", "login"))
	key := ipKey("10.0.0.1", "login")
	assert.Equal(t, time.Minute, mr.TTL(key))

	mr.FastForward(30 * time.Second)
	require.NoError(t, l.RecordIPRequestWithPurpose(ctx, "10.0.0.1", "login"))

	// later requests do not push the window out
	assert.Equal(t, 30*time.Second, mr.TTL(key))
	count, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "2", count)
}
