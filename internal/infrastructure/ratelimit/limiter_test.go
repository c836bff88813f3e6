package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/honeynil/LibraryAuthService/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCounter mimics a fixed window that never expires during a test.
type fakeCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	keys   []string
	err    error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: make(map[string]int64)}
}

func (c *fakeCounter) IncrWindow(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, 0, c.err
	}
	c.keys = append(c.keys, key)
	c.counts[key]++
	return c.counts[key], window / 2, nil
}

func TestRedisLimiter_Allow(t *testing.T) {
	counter := newFakeCounter()
	limiter := NewRedisLimiter(counter)
	rule := config.RateLimitRule{Limit: 2, Window: time.Minute}
	ctx := context.Background()

	res, err := limiter.Allow(ctx, "login:ip:10.0.0.1", rule)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Limit)
	assert.Equal(t, 1, res.Remaining)

	res, err = limiter.Allow(ctx, "login:ip:10.0.0.1", rule)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	res, err = limiter.Allow(ctx, "login:ip:10.0.0.1", rule)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 30*time.Second, res.RetryAfter)

	res, err = limiter.Allow(ctx, "login:ip:10.0.0.2", rule)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	assert.Equal(t, "ratelimit:login:ip:10.0.0.1", counter.keys[0])
}

func TestRedisLimiter_StoreErrorFailsOpen(t *testing.T) {
	counter := newFakeCounter()
	counter.err = errors.New("connection reset")
	limiter := NewRedisLimiter(counter)

	res, err := limiter.Allow(context.Background(), "k", config.RateLimitRule{Limit: 1, Window: time.Minute})
	assert.Error(t, err)
	assert.True(t, res.Allowed)
}

func TestLimiters_DisabledRule(t *testing.T) {
	limiters := map[string]Limiter{
		"Redis":  NewRedisLimiter(newFakeCounter()),
		"Memory": NewMemoryLimiter(),
	}
	for name, limiter := range limiters {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 5; i++ {
				res, err := limiter.Allow(context.Background(), "k", config.RateLimitRule{})
				require.NoError(t, err)
				assert.True(t, res.Allowed)
			}
		})
	}
}

func TestMemoryLimiter_Allow(t *testing.T) {
	limiter := NewMemoryLimiter()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	rule := config.RateLimitRule{Limit: 3, Window: time.Minute}
	ctx := context.Background()

	for want := 2; want >= 0; want-- {
		res, err := limiter.Allow(ctx, "a", rule)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, want, res.Remaining)
	}

	res, err := limiter.Allow(ctx, "a", rule)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.InDelta(t, float64(20*time.Second), float64(res.RetryAfter), float64(time.Millisecond))

	res, err = limiter.Allow(ctx, "b", rule)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	now = now.Add(21 * time.Second)
	res, err = limiter.Allow(ctx, "a", rule)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestMemoryLimiter_Sweep(t *testing.T) {
	limiter := NewMemoryLimiter()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	rule := config.RateLimitRule{Limit: 1, Window: time.Minute}

	_, err := limiter.Allow(context.Background(), "old", rule)
	require.NoError(t, err)

	limiter.sweep(now.Add(2*time.Minute), rule.Window)
	assert.Empty(t, limiter.buckets)
}
