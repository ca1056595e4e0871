// Package catalog serves the product catalog from a process-wide TTL snapshot.
package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/frerescollection/shopbot/internal/agent/model"
	logx "github.com/frerescollection/shopbot/pkg/logger"
	"golang.org/x/sync/singleflight"
)

// Snapshot maps product id to product. Callers must treat it as read-only.
type Snapshot map[string]model.Product

// Cache holds the last fetched catalog for TTL. Concurrent misses share one fetch.
type Cache struct {
	reader model.CatalogReader
	ttl    time.Duration
	now    func() time.Time

	mu         sync.RWMutex
	snapshot   Snapshot
	fetchedAt  time.Time
	generation uint64

	group singleflight.Group
}

type Option func(*Cache)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(reader model.CatalogReader, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		reader: reader,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns the cached catalog, refilling it when older than the TTL.
func (c *Cache) Snapshot(ctx context.Context) (Snapshot, error) {
	c.mu.RLock()
	snap, fetchedAt, gen := c.snapshot, c.fetchedAt, c.generation
	c.mu.RUnlock()

	if snap != nil && c.now().Sub(fetchedAt) < c.ttl {
		return snap, nil
	}

	v, err, _ := c.group.Do("catalog", func() (any, error) {
		return c.refill(ctx, gen)
	})
	if err != nil {
		return nil, err
	}
	return v.(Snapshot), nil
}

func (c *Cache) refill(ctx context.Context, gen uint64) (Snapshot, error) {
	products, err := c.reader.ListProducts(ctx)
	if err != nil {
		logx.Error().Err(err).Msg("failed to refresh catalog")
		return nil, fmt.Errorf("list products: %w", err)
	}

	snap := make(Snapshot, len(products))
	for _, p := range products {
		snap[p.ID] = p
	}

	c.mu.Lock()
	// An invalidation that raced with this fetch wins; the next caller refetches.
	if c.generation == gen {
		c.snapshot = snap
		c.fetchedAt = c.now()
	}
	c.mu.Unlock()

	logx.Debug().Int("products", len(snap)).Msg("catalog refreshed")
	return snap, nil
}

// Invalidate forces the next Snapshot call to refetch.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.snapshot = nil
	c.fetchedAt = time.Time{}
	c.generation++
	c.mu.Unlock()
}

// Product looks up one product in the current snapshot.
func (c *Cache) Product(ctx context.Context, id string) (model.Product, bool, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return model.Product{}, false, err
	}
	p, ok := snap[id]
	return p, ok, nil
}
