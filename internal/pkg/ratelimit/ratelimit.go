package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter throttles sensitive operations with redis counters. Each key is a
// fixed window: the first increment arms the expiry, later increments ride it.
type Limiter struct {
	client *redis.Client
}

func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// Allow counts a hit against the key and reports whether it stays within
// maxHits for the window.
func (l *Limiter) Allow(ctx context.Context, key string, maxHits int64, window time.Duration) (bool, error) {
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	if count == 1 {
		l.client.Expire(ctx, key, window)
	}
	return count <= maxHits, nil
}

// CheckLoginAttempt allows up to 5 login attempts per IP and email pair in a
// 15 minute window. Remaining attempts are reported for the response header.
func (l *Limiter) CheckLoginAttempt(ctx context.Context, ip, email string) (bool, int64, error) {
	key := fmt.Sprintf("ratelimit:login:%s:%s", ip, email)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to increment login attempt: %w", err)
	}
	if count == 1 {
		l.client.Expire(ctx, key, 15*time.Minute)
	}

	maxAttempts := int64(5)
	remaining := maxAttempts - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= maxAttempts, remaining, nil
}

// ResetLoginAttempts clears the counter after a successful login.
func (l *Limiter) ResetLoginAttempts(ctx context.Context, ip, email string) error {
	key := fmt.Sprintf("ratelimit:login:%s:%s", ip, email)
	return l.client.Del(ctx, key).Err()
}

// CheckRedemptionAttempt throttles coupon redemption per station terminal so
// a misbehaving till cannot hammer the engine. 60 attempts per minute.
func (l *Limiter) CheckRedemptionAttempt(ctx context.Context, stationID string) (bool, error) {
	key := fmt.Sprintf("ratelimit:redeem:%s", stationID)
	return l.Allow(ctx, key, 60, time.Minute)
}
