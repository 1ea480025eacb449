package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter over Redis, used on the public
// manual-check endpoint. Keys expire with the window, so the structure is
// bounded without any sweep of our own.
type RateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewRateLimiter(addr, password string, db, limit int, window time.Duration) *RateLimiter {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RateLimiter{client: rdb, limit: limit, window: window}
}

// Allow increments the caller's counter and reports whether it is within the
// limit. On Redis failure it fails open; rate limiting is protection, not a
// correctness requirement.
func (l *RateLimiter) Allow(ctx context.Context, key string) bool {
	redisKey := fmt.Sprintf("ratelimit:%s", key)

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return true
	}
	if count == 1 {
		l.client.Expire(ctx, redisKey, l.window)
	}
	return count <= int64(l.limit)
}

func (l *RateLimiter) Close() error {
	return l.client.Close()
}
