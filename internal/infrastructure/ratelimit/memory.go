package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/honeynil/LibraryAuthService/internal/config"
	"golang.org/x/time/rate"
)

const sweepThreshold = 10000

type bucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// MemoryLimiter spreads rule.Limit requests evenly over rule.Window per key,
// allowing bursts of up to rule.Limit.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, rule config.RateLimitRule) (Result, error) {
	if rule.Limit <= 0 || rule.Window <= 0 {
		return Result{Allowed: true}, nil
	}

	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= sweepThreshold {
			l.sweep(now, rule.Window)
		}
		b = &bucket{limiter: rate.NewLimiter(rate.Every(rule.Window/time.Duration(rule.Limit)), rule.Limit)}
		l.buckets[key] = b
	}
	b.seen = now

	res := Result{Limit: rule.Limit}
	reservation := b.limiter.ReserveN(now, 1)
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		res.RetryAfter = delay
		return res, nil
	}
	res.Allowed = true
	res.Remaining = max(int(b.limiter.TokensAt(now)), 0)
	return res, nil
}

// sweep drops buckets idle for longer than window; they would be full again.
func (l *MemoryLimiter) sweep(now time.Time, window time.Duration) {
	for key, b := range l.buckets {
		if now.Sub(b.seen) > window {
			delete(l.buckets, key)
		}
	}
}
