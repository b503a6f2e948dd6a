package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultIPLimit  = 10
	defaultIPWindow = 15 * time.Minute
)

// Limiter counts requests per client IP in fixed Redis windows
type Limiter struct {
	client redis.UniversalClient
	limit  int64
	window time.Duration
}

// NewLimiter allows 10 requests per IP and purpose every 15 minutes
func NewLimiter(client redis.UniversalClient) *Limiter {
	return NewLimiterWithWindow(client, defaultIPLimit, defaultIPWindow)
}

func NewLimiterWithWindow(client redis.UniversalClient, limit int, window time.Duration) *Limiter {
	return &Limiter{client: client, limit: int64(limit), window: window}
}

func ipKey(ip, purpose string) string {
	if purpose == "" {
		return fmt.Sprintf("rate_limit:ip:%s", ip)
	}
	return fmt.Sprintf("rate_limit:ip:%s:%s", purpose, ip)
}

// CheckIPRateLimit reports whether ip has used up its budget
func (l *Limiter) CheckIPRateLimit(ctx context.Context, ip string) (bool, error) {
	return l.CheckIPRateLimitWithPurpose(ctx, ip, "")
}

// RecordIPRequest counts one request from ip
func (l *Limiter) RecordIPRequest(ctx context.Context, ip string) error {
	return l.RecordIPRequestWithPurpose(ctx, ip, "")
}

// CheckIPRateLimitWithPurpose is CheckIPRateLimit with a separate budget per endpoint
func (l *Limiter) CheckIPRateLimitWithPurpose(ctx context.Context, ip, purpose string) (bool, error) {
	count, err := l.client.Get(ctx, ipKey(ip, purpose)).Int64()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read ip counter: %w", err)
	}

	return count >= l.limit, nil
}

// RecordIPRequestWithPurpose increments the counter, starting the window on
// first use. Both commands run in one MULTI so a counter never outlives its window.
func (l *Limiter) RecordIPRequestWithPurpose(ctx context.Context, ip, purpose string) error {
	key := ipKey(ip, purpose)

	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, l.window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record ip request: %w", err)
	}

	return nil
}
