package inventory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/frerescollection/shopbot/internal/agent/model"
	errx "github.com/frerescollection/shopbot/internal/core/error"
	"github.com/frerescollection/shopbot/internal/metrics"
	"github.com/frerescollection/shopbot/internal/shop/store/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type invalidations struct{ n int }

func (i *invalidations) Invalidate() { i.n++ }

func product(id string, stock int) model.Product {
	return model.Product{ID: id, Name: "P" + id, Price: decimal.NewFromInt(100), Stock: stock, Category: "c"}
}

func line(id string, qty int) model.CartLine {
	return model.CartLine{ProductID: id, Name: "P" + id, UnitPrice: decimal.NewFromInt(100), Quantity: qty}
}

func stocks(s *memory.Store, ids ...string) map[string]int {
	out := map[string]int{}
	for _, id := range ids {
		out[id] = s.Stock(id)
	}
	return out
}

func TestCommitDecrementsAndInvalidates(t *testing.T) {
	store := memory.NewStore(product("1", 5), product("2", 3))
	inv := &invalidations{}
	reg := prometheus.NewRegistry()
	e := NewEngine(store, inv, WithMetrics(metrics.New(reg)))

	err := e.Commit(context.Background(), []model.CartLine{line("1", 2), line("2", 3)})
	require.NoError(t, err)

	assert.Equal(t, 3, store.Stock("1"))
	assert.Equal(t, 0, store.Stock("2"))
	assert.Equal(t, 1, inv.n)
	n, err := testutil.GatherAndCount(reg, "bot_inventory_commits_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCommitRollsBackAtEveryFailurePosition(t *testing.T) {
	ids := []string{"1", "2", "3", "4"}
	for failAt := range ids {
		t.Run(fmt.Sprintf("fail_at_%d", failAt), func(t *testing.T) {
			store := memory.NewStore(product("1", 5), product("2", 5), product("3", 5), product("4", 5))
			before := stocks(store, ids...)

			cart := make([]model.CartLine, len(ids))
			for i, id := range ids {
				qty := 2
				if i == failAt {
					qty = 6
				}
				cart[i] = line(id, qty)
			}

			err := NewEngine(store, nil).Commit(context.Background(), cart)
			require.Error(t, err)
			assert.True(t, errx.IsInventoryConflict(err))
			assert.Equal(t, errx.KindInventoryConflict, errx.KindOf(err))
			assert.Equal(t, before, stocks(store, ids...))
		})
	}
}

func TestCommitMissingProductIsConflict(t *testing.T) {
	store := memory.NewStore(product("1", 5))

	err := NewEngine(store, nil).Commit(context.Background(), []model.CartLine{line("1", 1), line("gone", 1)})
	require.Error(t, err)
	assert.True(t, errx.IsInventoryConflict(err))
	assert.True(t, errors.Is(err, errx.ErrProductNotFound))
	assert.Equal(t, 5, store.Stock("1"))
}

type flakyStock struct {
	*memory.Store
	decrementErr map[string]error
	incrementErr error
	increments   []string
}

func (f *flakyStock) DecrementStock(ctx context.Context, id string, qty int) (int, error) {
	if err := f.decrementErr[id]; err != nil {
		return 0, err
	}
	return f.Store.DecrementStock(ctx, id, qty)
}

func (f *flakyStock) IncrementStock(ctx context.Context, id string, qty int) error {
	f.increments = append(f.increments, id)
	if f.incrementErr != nil {
		return f.incrementErr
	}
	return f.Store.IncrementStock(ctx, id, qty)
}

func TestCommitStoreFailureIsCollaboratorError(t *testing.T) {
	fs := &flakyStock{
		Store:        memory.NewStore(product("1", 5), product("2", 5), product("3", 5)),
		decrementErr: map[string]error{"3": errors.New("deadline exceeded")},
	}

	err := NewEngine(fs, nil).Commit(context.Background(), []model.CartLine{line("1", 1), line("2", 2), line("3", 1)})
	require.Error(t, err)
	assert.Equal(t, errx.KindCollaborator, errx.KindOf(err))
	assert.Equal(t, []string{"1", "2"}, fs.increments, "only committed lines are compensated")
	assert.Equal(t, 5, fs.Stock("1"))
	assert.Equal(t, 5, fs.Stock("2"))
}

func TestCommitReportsRollbackFailures(t *testing.T) {
	fs := &flakyStock{
		Store:        memory.NewStore(product("1", 5), product("2", 0)),
		incrementErr: errors.New("write failed"),
	}

	err := NewEngine(fs, nil).Commit(context.Background(), []model.CartLine{line("1", 1), line("2", 1)})
	require.Error(t, err)
	assert.True(t, errx.IsInventoryConflict(err))
	assert.Contains(t, err.Error(), "write failed")
}

func TestReleaseRestoresStock(t *testing.T) {
	store := memory.NewStore(product("7", 4))
	inv := &invalidations{}
	e := NewEngine(store, inv)

	require.NoError(t, e.Release(context.Background(), []model.CartLine{line("7", 1)}))
	assert.Equal(t, 5, store.Stock("7"))
	assert.Equal(t, 1, inv.n)
}
