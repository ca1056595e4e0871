// Package inventory commits cart stock against the product store with rollback.
package inventory

import (
	"context"
	"fmt"

	"github.com/frerescollection/shopbot/internal/agent/model"
	errx "github.com/frerescollection/shopbot/internal/core/error"
	"github.com/frerescollection/shopbot/internal/metrics"
	logx "github.com/frerescollection/shopbot/pkg/logger"
	"go.uber.org/multierr"
)

// Invalidator is notified after stock changes so cached catalogs are dropped.
type Invalidator interface {
	Invalidate()
}

type Engine struct {
	stock    model.StockStore
	cache    Invalidator
	lowStock int
	metrics  *metrics.BotMetrics
}

type Option func(*Engine)

// WithLowStockThreshold logs products left with at most n units after a commit.
func WithLowStockThreshold(n int) Option {
	return func(e *Engine) { e.lowStock = n }
}

func WithMetrics(m *metrics.BotMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(stock model.StockStore, cache Invalidator, opts ...Option) *Engine {
	e := &Engine{stock: stock, cache: cache, lowStock: 5}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Commit decrements stock for every line in order. On the first refused line it
// restores exactly the lines already decremented and reports an inventory conflict.
func (e *Engine) Commit(ctx context.Context, lines []model.CartLine) error {
	committed := make([]model.CartLine, 0, len(lines))
	var low []string

	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		remaining, err := e.stock.DecrementStock(ctx, line.ProductID, line.Quantity)
		if err != nil {
			rbErr := e.rollback(ctx, committed)
			if len(committed) > 0 {
				e.invalidate()
			}
			logx.Warn().Err(err).
				Str("product_id", line.ProductID).
				Int("quantity", line.Quantity).
				Int("rolled_back", len(committed)).
				Msg("cart commit refused")
			if rbErr != nil {
				logx.Error().Err(rbErr).Msg("cart rollback incomplete")
			}
			return e.classify(line, err, rbErr)
		}
		committed = append(committed, line)
		if remaining <= e.lowStock {
			low = append(low, line.ProductID)
		}
	}

	e.invalidate()
	e.metrics.IncCommit("ok")
	for _, id := range low {
		logx.Warn().Str("product_id", id).Int("threshold", e.lowStock).Msg("low stock")
	}
	return nil
}

// Release restores the stock held by lines, for cancelled orders.
func (e *Engine) Release(ctx context.Context, lines []model.CartLine) error {
	err := e.rollback(ctx, lines)
	e.invalidate()
	if err != nil {
		logx.Error().Err(err).Msg("stock release incomplete")
		return fmt.Errorf("release stock: %w", err)
	}
	return nil
}

func (e *Engine) rollback(ctx context.Context, lines []model.CartLine) error {
	var errs error
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		if err := e.stock.IncrementStock(ctx, line.ProductID, line.Quantity); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("restore %s x%d: %w", line.ProductID, line.Quantity, err))
		}
	}
	return errs
}

func (e *Engine) classify(line model.CartLine, err, rbErr error) error {
	if errx.Is(err, errx.ErrInsufficientStock) || errx.Is(err, errx.ErrProductNotFound) {
		e.metrics.IncCommit("conflict")
		return errx.InventoryConflict(multierr.Append(fmt.Errorf("product %s: %w", line.ProductID, err), rbErr))
	}
	e.metrics.IncCommit("error")
	return errx.Collaborator(multierr.Append(err, rbErr), "inventory commit failed")
}

func (e *Engine) invalidate() {
	if e.cache != nil {
		e.cache.Invalidate()
	}
}
