package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/frerescollection/shopbot/internal/agent/model"
	errx "github.com/frerescollection/shopbot/internal/core/error"
	"github.com/frerescollection/shopbot/internal/shop/inventory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T, products ...model.Product) *Store {
	t.Helper()
	dsn := "file:shopbot_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	s, err := New(context.Background(), db)
	require.NoError(t, err)
	for _, p := range products {
		require.NoError(t, s.PutProduct(context.Background(), p))
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func product(id string, price int64, stock int) model.Product {
	return model.Product{ID: id, Name: "P" + id, Price: decimal.NewFromInt(price), Stock: stock, Category: "Blusas"}
}

func stockOf(t *testing.T, s *Store, id string) int {
	t.Helper()
	products, err := s.ListProducts(context.Background())
	require.NoError(t, err)
	for _, p := range products {
		if p.ID == id {
			return p.Stock
		}
	}
	t.Fatalf("product %s not found", id)
	return 0
}

func TestListProductsMapsColumns(t *testing.T) {
	added := time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC)
	p := product("7", 250, 3)
	p.ImageURL = "https://cdn/7.jpg"
	p.DiscountPercent = 10
	p.CreatedAt = &added
	s := newTestStore(t, p, product("8", 90, 0))

	products, err := s.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)

	got := products[0]
	assert.Equal(t, "7", got.ID)
	assert.True(t, decimal.NewFromInt(250).Equal(got.Price))
	assert.Equal(t, 3, got.Stock)
	assert.Equal(t, "https://cdn/7.jpg", got.ImageURL)
	assert.Equal(t, 10.0, got.DiscountPercent)
	require.NotNil(t, got.CreatedAt)
	assert.True(t, added.Equal(*got.CreatedAt))
}

func TestDecrementStockIsConditional(t *testing.T) {
	s := newTestStore(t, product("7", 100, 5))
	ctx := context.Background()

	remaining, err := s.DecrementStock(ctx, "7", 4)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	remaining, err = s.DecrementStock(ctx, "7", 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, errx.ErrInsufficientStock)
	assert.Equal(t, 1, remaining)
	assert.Equal(t, 1, stockOf(t, s, "7"))

	_, err = s.DecrementStock(ctx, "missing", 1)
	assert.ErrorIs(t, err, errx.ErrProductNotFound)

	require.NoError(t, s.IncrementStock(ctx, "7", 4))
	assert.Equal(t, 5, stockOf(t, s, "7"))
	assert.ErrorIs(t, s.IncrementStock(ctx, "missing", 1), errx.ErrProductNotFound)
}

func TestInventoryRollbackAgainstSQL(t *testing.T) {
	s := newTestStore(t, product("1", 100, 5), product("2", 100, 1))
	engine := inventory.NewEngine(s, nil)

	err := engine.Commit(context.Background(), []model.CartLine{
		product("1", 100, 5).Line(3),
		product("2", 100, 1).Line(2),
	})
	require.Error(t, err)
	assert.True(t, errx.IsInventoryConflict(err))
	assert.Equal(t, 5, stockOf(t, s, "1"))
	assert.Equal(t, 1, stockOf(t, s, "2"))
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetUser(ctx, "5512345678")
	assert.ErrorIs(t, err, errx.ErrNotFound)

	require.NoError(t, s.SaveUser(ctx, model.User{Phone: "5512345678", Name: "Juan Perez", Address: "Calle Falsa 123"}))
	u, err := s.GetUser(ctx, "5512345678")
	require.NoError(t, err)
	assert.Equal(t, "Juan Perez", u.Name)
	assert.Equal(t, "Calle Falsa 123", u.Address)
}

func TestOrdersLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	lines := []model.CartLine{product("7", 100, 5).Line(2)}

	first, err := s.CreateOrder(ctx, &model.Order{
		Phone: "5512345678", CustomerName: "Juan", CreatedAt: base,
		Status: model.OrderPending, Lines: lines, Total: decimal.NewFromInt(200),
	})
	require.NoError(t, err)
	second, err := s.CreateOrder(ctx, &model.Order{
		Phone: "5512345678", CustomerName: "Juan", CreatedAt: base.Add(time.Hour),
		Status: model.OrderPending, Lines: lines, Total: decimal.NewFromInt(200),
	})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	latest, err := s.LatestOrderByPhone(ctx, "5512345678")
	require.NoError(t, err)
	assert.Equal(t, second, latest.ID)

	got, err := s.GetOrder(ctx, first)
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, 2, got.Lines[0].Quantity)
	assert.True(t, decimal.NewFromInt(200).Equal(got.Total))

	require.NoError(t, s.SetDelivery(ctx, first, model.DeliveryHome, "Calle Falsa 123"))
	require.NoError(t, s.SetStatus(ctx, first, model.OrderCancelled))
	got, err = s.GetOrder(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryHome, got.DeliveryMethod)
	assert.Equal(t, "Calle Falsa 123", got.Address)
	assert.Equal(t, model.OrderCancelled, got.Status)

	assert.ErrorIs(t, s.SetStatus(ctx, "nope", model.OrderCancelled), errx.ErrNotFound)
	_, err = s.LatestOrderByPhone(ctx, "0000000000")
	assert.ErrorIs(t, err, errx.ErrNotFound)
}

func TestRecordAnalytics(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Record(context.Background(), model.AnalyticsEvent{
		Type: model.EventSearch, SenderID: "u1", Attributes: map[string]any{"termino": "blusa"},
	}))

	var rows []eventRow
	require.NoError(t, s.db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "busqueda", rows[0].Type)
	assert.Equal(t, "blusa", rows[0].Attributes["termino"])
	assert.False(t, rows[0].OccurredAt.IsZero())
}
