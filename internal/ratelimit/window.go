// Package ratelimit bounds how many messages a sender may push through the bot.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter admits or rejects one message for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Pruner is implemented by limiters that keep per-key state in process and
// need a periodic sweep to forget idle senders.
type Pruner interface {
	Prune() int
}

// Option configures a limiter.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Window is an in-process sliding-window log: a key is admitted only while fewer
// than limit admissions fall inside the trailing window. Rejections are not recorded.
// Idle keys are dropped by Prune and, at most once per window, by Allow itself.
type Window struct {
	mu        sync.Mutex
	hits      map[string][]time.Time
	limit     int
	window    time.Duration
	now       func() time.Time
	lastPrune time.Time
}

func NewWindow(limit int, window time.Duration, opts ...Option) *Window {
	o := buildOptions(opts)
	return &Window{
		hits:      make(map[string][]time.Time),
		limit:     limit,
		window:    window,
		now:       o.now,
		lastPrune: o.now(),
	}
}

func (w *Window) Allow(_ context.Context, key string) (bool, error) {
	if w.limit <= 0 {
		return true, nil
	}
	now := w.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-w.window)
	if !w.lastPrune.After(cutoff) {
		w.pruneLocked(cutoff)
	}

	kept := prune(w.hits[key], cutoff)
	if len(kept) >= w.limit {
		w.hits[key] = kept
		return false, nil
	}
	w.hits[key] = append(kept, now)
	return true, nil
}

// Prune drops timestamps outside the window and forgets idle keys.
func (w *Window) Prune() int {
	cutoff := w.now().Add(-w.window)

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pruneLocked(cutoff)
}

// Len reports how many keys are tracked.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.hits)
}

func (w *Window) pruneLocked(cutoff time.Time) int {
	w.lastPrune = w.now()
	removed := 0
	for key, ts := range w.hits {
		kept := prune(ts, cutoff)
		if len(kept) == 0 {
			delete(w.hits, key)
			removed++
			continue
		}
		w.hits[key] = kept
	}
	return removed
}

// prune keeps timestamps strictly after cutoff. ts is in ascending order.
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}

var (
	_ Limiter = (*Window)(nil)
	_ Pruner  = (*Window)(nil)
)
