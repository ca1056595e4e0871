package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newRedisLimiter(t *testing.T, limit int, window time.Duration, clock *fakeClock) *RedisWindow {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisWindow(rdb, limit, window, WithClock(clock.Now))
}

var backends = []string{"memory", "redis"}

func newLimiter(t *testing.T, backend string, clock *fakeClock) Limiter {
	if backend == "redis" {
		return newRedisLimiter(t, 10, time.Minute, clock)
	}
	return NewWindow(10, time.Minute, WithClock(clock.Now))
}

func TestLimiterRejectsEleventhCallInWindow(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			clock := newFakeClock()
			l := newLimiter(t, backend, clock)
			ctx := context.Background()

			for i := 0; i < 10; i++ {
				ok, err := l.Allow(ctx, "u1")
				require.NoError(t, err)
				require.True(t, ok, "call %d", i+1)
				clock.Advance(time.Second)
			}

			ok, err := l.Allow(ctx, "u1")
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = l.Allow(ctx, "u2")
			require.NoError(t, err)
			assert.True(t, ok, "other senders are unaffected")
		})
	}
}

func TestLimiterResumesAfterWindow(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			clock := newFakeClock()
			l := newLimiter(t, backend, clock)
			ctx := context.Background()

			for i := 0; i < 10; i++ {
				ok, err := l.Allow(ctx, "u1")
				require.NoError(t, err)
				require.True(t, ok)
			}
			ok, _ := l.Allow(ctx, "u1")
			require.False(t, ok)

			clock.Advance(time.Minute + time.Millisecond)
			ok, err := l.Allow(ctx, "u1")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestLimiterSlidesRatherThanResets(t *testing.T) {
	clock := newFakeClock()
	l := NewWindow(2, time.Minute, WithClock(clock.Now))
	ctx := context.Background()

	ok, _ := l.Allow(ctx, "u")
	require.True(t, ok)
	clock.Advance(40 * time.Second)
	ok, _ = l.Allow(ctx, "u")
	require.True(t, ok)

	clock.Advance(30 * time.Second) // first hit left the window, second has not
	ok, _ = l.Allow(ctx, "u")
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "u")
	assert.False(t, ok)
}

func TestRejectedCallsAreNotRecorded(t *testing.T) {
	clock := newFakeClock()
	l := NewWindow(1, time.Minute, WithClock(clock.Now))
	ctx := context.Background()

	ok, _ := l.Allow(ctx, "u")
	require.True(t, ok)
	for i := 0; i < 5; i++ {
		clock.Advance(10 * time.Second)
		ok, _ = l.Allow(ctx, "u")
		require.False(t, ok)
	}

	clock.Advance(11 * time.Second)
	ok, _ = l.Allow(ctx, "u")
	assert.True(t, ok)
}

func TestWindowPruneForgetsIdleKeys(t *testing.T) {
	clock := newFakeClock()
	l := NewWindow(3, time.Minute, WithClock(clock.Now))
	ctx := context.Background()

	_, _ = l.Allow(ctx, "a")
	clock.Advance(50 * time.Second)
	_, _ = l.Allow(ctx, "b")
	clock.Advance(20 * time.Second)

	assert.Equal(t, 1, l.Prune())
	assert.Len(t, l.hits, 1)
	assert.Contains(t, l.hits, "b")
}

func TestWindowForgetsIdleSendersWithoutSweep(t *testing.T) {
	clock := newFakeClock()
	l := NewWindow(10, time.Minute, WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 10000; i++ {
		ok, err := l.Allow(ctx, fmt.Sprintf("sender-%d", i))
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, 10000, l.Len())

	clock.Advance(24 * time.Hour)
	ok, err := l.Allow(ctx, "late")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, l.Len())
}

func TestWindowPruneThroughPruner(t *testing.T) {
	clock := newFakeClock()
	var l Limiter = NewWindow(2, time.Minute, WithClock(clock.Now))
	for i := 0; i < 5; i++ {
		_, _ = l.Allow(context.Background(), fmt.Sprintf("u%d", i))
	}
	clock.Advance(2 * time.Minute)

	p, ok := l.(Pruner)
	require.True(t, ok)
	assert.Equal(t, 5, p.Prune())
	assert.Equal(t, 0, l.(*Window).Len())
}

func TestZeroLimitDisablesLimiter(t *testing.T) {
	l := NewWindow(0, time.Minute)
	for i := 0; i < 100; i++ {
		ok, err := l.Allow(context.Background(), "u")
		require.NoError(t, err)
		require.True(t, ok)
	}
}
