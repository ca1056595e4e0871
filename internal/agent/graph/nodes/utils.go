package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"

	"github.com/frerescollection/shopbot/internal/agent/model"
	"github.com/frerescollection/shopbot/internal/shop/catalog"
)

const DefaultCatalogExcerpt = 20

// normalizeExcerpt returns a sane default when the provided value is invalid.
func normalizeExcerpt(n int) int {
	if n <= 0 {
		return DefaultCatalogExcerpt
	}
	return n
}

// readState copies what fn needs out of the graph state.
func readState(ctx context.Context, fn func(*model.AppState)) error {
	return compose.ProcessState(ctx, func(_ context.Context, s *model.AppState) error {
		fn(s)
		return nil
	})
}

// catalogExcerpt lists up to limit in-stock products, cheapest first, one per line.
func catalogExcerpt(snap catalog.Snapshot, limit int) string {
	limit = normalizeExcerpt(limit)
	var b strings.Builder
	n := 0
	for _, p := range snap.PriceRange(nil, nil) {
		if !p.InStock() {
			continue
		}
		if n == limit {
			break
		}
		fmt.Fprintf(&b, "- %s | %s | $%s MXN | ID %s\n", p.Name, p.Category, p.FinalPrice().StringFixed(2), p.ID)
		n++
	}
	return strings.TrimRight(b.String(), "\n")
}
