package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window limiter backed by a shared Redis counter,
// for deployments running more than one engine instance.
type RedisLimiter struct {
	client     *redis.Client
	windowSize time.Duration
	max        int
}

// NewRedisLimiter creates a Redis-backed fixed-window limiter.
func NewRedisLimiter(client *redis.Client, windowSize time.Duration, max int) *RedisLimiter {
	return &RedisLimiter{
		client:     client,
		windowSize: windowSize,
		max:        max,
	}
}

var _ Limiter = (*RedisLimiter)(nil)

// Allow increments the key's counter; the first increment in a window also
// sets the expiry. INCR is atomic, so concurrent callers each get a distinct
// count.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := "ratelimit:" + key

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit counter unavailable: %w", err)
	}

	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.windowSize).Err(); err != nil {
			return false, fmt.Errorf("rate limit expiry failed: %w", err)
		}
	}

	return count <= int64(l.max), nil
}
