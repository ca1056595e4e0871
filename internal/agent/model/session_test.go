package model

import (
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartAddMergesSameProduct(t *testing.T) {
	var cart Cart
	p := Product{ID: "7", Name: "Blusa", Price: decimal.NewFromInt(100), Category: "Ropa"}

	cart.Add(p.Line(2))
	merged := cart.Add(p.Line(3))

	require.Len(t, cart, 1)
	assert.Equal(t, 5, merged.Quantity)
	assert.Equal(t, 5, cart.Quantity("7"))
}

func TestCartKeepsInsertionOrder(t *testing.T) {
	var cart Cart
	for _, id := range []string{"3", "1", "2"} {
		cart.Add(CartLine{ProductID: id, Quantity: 1, UnitPrice: decimal.NewFromInt(1)})
	}
	cart.Add(CartLine{ProductID: "1", Quantity: 1})

	ids := []string{}
	for _, l := range cart {
		ids = append(ids, l.ProductID)
	}
	assert.Equal(t, []string{"3", "1", "2"}, ids)
}

func TestCartTotalHasNoFloatDrift(t *testing.T) {
	cart := Cart{
		{ProductID: "1", UnitPrice: decimal.RequireFromString("0.1"), Quantity: 3},
		{ProductID: "2", UnitPrice: decimal.RequireFromString("199.99"), Quantity: 2},
	}
	assert.True(t, cart.Total().Equal(decimal.RequireFromString("400.28")))
}

func TestCartRemove(t *testing.T) {
	cart := Cart{{ProductID: "1", Quantity: 1}, {ProductID: "2", Quantity: 1}}

	line, ok := cart.Remove("1")
	require.True(t, ok)
	assert.Equal(t, "1", line.ProductID)
	assert.Len(t, cart, 1)

	_, ok = cart.Remove("9")
	assert.False(t, ok)
}

func TestSessionExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewSession("u1", now.Add(-1801*time.Second))

	assert.True(t, s.Expired(now, 1800*time.Second))
	s.LastActivity = now.Add(-1799 * time.Second)
	assert.False(t, s.Expired(now, 1800*time.Second))
}

func TestSessionCloneIsDeep(t *testing.T) {
	s := NewSession("u1", time.Now())
	s.Cart.Add(CartLine{ProductID: "1", Quantity: 1})
	s.Profile = &User{Phone: "5512345678", Name: "Ana"}
	s.Browse = &BrowseCursor{Category: "Ropa", ProductIDs: []string{"1", "2"}}

	c := s.Clone()
	c.Cart[0].Quantity = 9
	c.Profile.Name = "Otra"
	c.Browse.ProductIDs[0] = "x"

	assert.Equal(t, 1, s.Cart[0].Quantity)
	assert.Equal(t, "Ana", s.Profile.Name)
	assert.Equal(t, "1", s.Browse.ProductIDs[0])
}

func TestSessionNormalizeRepairsUnknownState(t *testing.T) {
	s := &Session{State: "elige_categoria"}
	s.Normalize()
	assert.Equal(t, StateStart, s.State)
	assert.NotNil(t, s.Cart)

	s = &Session{State: "bogus", Profile: &User{Phone: "5512345678"}}
	s.Normalize()
	assert.Equal(t, StateAuthenticated, s.State)
}

func TestBrowseCursor(t *testing.T) {
	b := &BrowseCursor{ProductIDs: []string{"1", "2"}}
	id, ok := b.Current()
	require.True(t, ok)
	assert.Equal(t, "1", id)

	b.Index = 2
	_, ok = b.Current()
	assert.False(t, ok)
	assert.True(t, b.Exhausted())
}

func TestProductFinalPrice(t *testing.T) {
	p := Product{Price: decimal.NewFromInt(250), DiscountPercent: 20}
	assert.True(t, p.FinalPrice().Equal(decimal.NewFromInt(200)))
	assert.True(t, p.Discounted())

	p = Product{Price: decimal.NewFromInt(250), OnSale: true}
	assert.True(t, p.FinalPrice().Equal(decimal.NewFromInt(250)))
}

func TestUsageFor(t *testing.T) {
	assert.Nil(t, UsageFor("gemini-2.5-flash", nil))

	u := UsageFor("gemini-2.5-flash", &schema.TokenUsage{PromptTokens: 1_000_000, CompletionTokens: 1_000_000})
	require.NotNil(t, u)
	assert.InDelta(t, 2.80, u.TotalCostUSD, 1e-9)

	unknown := UsageFor("other", &schema.TokenUsage{PromptTokens: 10})
	assert.Zero(t, unknown.TotalCostUSD)
}
