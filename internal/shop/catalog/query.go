package catalog

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/frerescollection/shopbot/internal/agent/model"
	"github.com/frerescollection/shopbot/internal/agent/textnorm"
	"github.com/shopspring/decimal"
)

// DefaultCategory is used for products stored without one.
const DefaultCategory = "Sin categoría"

func categoryOf(p model.Product) string {
	if strings.TrimSpace(p.Category) == "" {
		return DefaultCategory
	}
	return p.Category
}

// Categories lists distinct categories in alphabetical order. Spellings that
// normalize to the same key are merged.
func (s Snapshot) Categories() []string {
	byKey := map[string]string{}
	for _, p := range s {
		c := categoryOf(p)
		key := textnorm.Normalize(c)
		if prev, ok := byKey[key]; !ok || c < prev {
			byKey[key] = c
		}
	}
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = byKey[k]
	}
	return out
}

// InCategory returns the products of category, matched accent- and case-insensitively.
func (s Snapshot) InCategory(category string) []model.Product {
	want := textnorm.Normalize(category)
	return s.filter(func(p model.Product) bool {
		return textnorm.Normalize(categoryOf(p)) == want
	}, byID)
}

// Search matches term against normalized product names.
func (s Snapshot) Search(term string) []model.Product {
	needle := textnorm.Normalize(term)
	if needle == "" {
		return nil
	}
	return s.filter(func(p model.Product) bool {
		return strings.Contains(textnorm.Normalize(p.Name), needle)
	}, byID)
}

// PriceRange returns products priced within [min, max]; a nil bound is open. Sorted by price.
func (s Snapshot) PriceRange(min, max *decimal.Decimal) []model.Product {
	return s.filter(func(p model.Product) bool {
		if min != nil && p.Price.LessThan(*min) {
			return false
		}
		if max != nil && p.Price.GreaterThan(*max) {
			return false
		}
		return true
	}, byPrice)
}

// NewSince returns products created at or after cutoff, newest first.
func (s Snapshot) NewSince(cutoff, now time.Time) []model.Product {
	return s.filter(func(p model.Product) bool {
		return p.CreatedAt != nil && !p.CreatedAt.Before(cutoff) && !p.CreatedAt.After(now)
	}, func(a, b model.Product) int {
		if c := b.CreatedAt.Compare(*a.CreatedAt); c != 0 {
			return c
		}
		return byID(a, b)
	})
}

// Offers returns discounted or on-sale products.
func (s Snapshot) Offers() []model.Product {
	return s.filter(model.Product.Discounted, byID)
}

// LowStock returns products with 0 < stock <= threshold.
func (s Snapshot) LowStock(threshold int) []model.Product {
	return s.filter(func(p model.Product) bool {
		return p.Stock > 0 && p.Stock <= threshold
	}, byID)
}

func (s Snapshot) filter(keep func(model.Product) bool, order func(a, b model.Product) int) []model.Product {
	var out []model.Product
	for _, p := range s {
		if keep(p) {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, order)
	return out
}

func byPrice(a, b model.Product) int {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c
	}
	return byID(a, b)
}

// byID orders numeric ids numerically and puts them before other ids.
func byID(a, b model.Product) int {
	ai, aerr := strconv.Atoi(a.ID)
	bi, berr := strconv.Atoi(b.ID)
	switch {
	case aerr == nil && berr == nil:
		return cmp.Compare(ai, bi)
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	}
	return cmp.Compare(a.ID, b.ID)
}

// IDs returns the ids of products in order.
func IDs(products []model.Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.ID
	}
	return out
}
