// Package ratelimit throttles HTTP clients with fixed-window counters kept in
// Redis, or with in-process token buckets when Redis is not configured.
package ratelimit

import (
	"context"
	"time"

	"github.com/honeynil/LibraryAuthService/internal/config"
)

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether one more request under key fits the rule.
// An error means the backing store failed and the caller should fail open.
type Limiter interface {
	Allow(ctx context.Context, key string, rule config.RateLimitRule) (Result, error)
}

// Counter is implemented by the Redis client.
type Counter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

type RedisLimiter struct {
	counter Counter
	prefix  string
}

func NewRedisLimiter(counter Counter) *RedisLimiter {
	return &RedisLimiter{counter: counter, prefix: "ratelimit:"}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, rule config.RateLimitRule) (Result, error) {
	if rule.Limit <= 0 || rule.Window <= 0 {
		return Result{Allowed: true}, nil
	}

	count, ttl, err := l.counter.IncrWindow(ctx, l.prefix+key, rule.Window)
	if err != nil {
		return Result{Allowed: true, Limit: rule.Limit, Remaining: rule.Limit}, err
	}

	res := Result{Limit: rule.Limit, Remaining: max(rule.Limit-int(count), 0)}
	if count > int64(rule.Limit) {
		res.RetryAfter = ttl
		return res, nil
	}
	res.Allowed = true
	return res, nil
}
