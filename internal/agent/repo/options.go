// Package repo holds the durable SessionRepository implementations.
package repo

import "time"

type options struct {
	now func() time.Time
}

type Option func(*options)

// WithClock overrides time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func collect(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
