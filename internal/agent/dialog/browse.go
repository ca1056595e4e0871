package dialog

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/frerescollection/shopbot/internal/agent/model"
	"github.com/frerescollection/shopbot/internal/agent/textnorm"
	"github.com/frerescollection/shopbot/internal/shop/catalog"
	logx "github.com/frerescollection/shopbot/pkg/logger"
)

// snapshot loads the catalog; on failure it returns the apology to send.
func (e *Engine) snapshot(ctx context.Context, t *turn) (catalog.Snapshot, string, bool) {
	snap, err := e.catalog.Snapshot(ctx)
	if err != nil {
		logx.Error().Err(err).Str("sender_id", t.session.SenderID).Msg("catalog unavailable")
		e.events.Error(ctx, t.session.SenderID, "catalogo", err)
		return nil, MsgApology, false
	}
	return snap, "", true
}

func (e *Engine) showCategories(ctx context.Context, t *turn) string {
	snap, apology, ok := e.snapshot(ctx, t)
	if !ok {
		return apology
	}
	s := t.session
	categories := snap.Categories()
	s.Browse = nil
	s.PendingCategories = categories
	if len(categories) == 0 {
		s.State = s.IdleState()
		return msgNoCategories
	}
	s.State = model.StateChoosingCategory
	return categoryList("🛍 *Categorías disponibles:*\n\n", categories) +
		"\n👉 Escribe el número o el nombre de la categoría que quieres ver."
}

// pickCategory resolves a 1-based index or a category name inside the message.
func pickCategory(t *turn) (string, bool) {
	pending := t.session.PendingCategories
	if t.cmd.Numeric() {
		i, err := strconv.Atoi(t.cmd.Text)
		if err != nil || i < 1 || i > len(pending) {
			return "", false
		}
		return pending[i-1], true
	}
	for _, c := range pending {
		if key := textnorm.Normalize(c); key != "" && t.cmd.HasPhrase(key) {
			return c, true
		}
	}
	return "", false
}

func (e *Engine) chooseCategory(ctx context.Context, t *turn) string {
	category, ok := pickCategory(t)
	if !ok {
		return msgUnknownCategory
	}
	snap, apology, ok := e.snapshot(ctx, t)
	if !ok {
		return apology
	}
	products := snap.InCategory(category)
	if len(products) == 0 {
		return msgEmptyCategory
	}

	s := t.session
	s.Browse = &model.BrowseCursor{Category: category, ProductIDs: catalog.IDs(products)}
	s.State = model.StateBrowsingProduct
	return e.showCurrent(ctx, t, snap)
}

func (e *Engine) browse(ctx context.Context, t *turn) string {
	s := t.session
	if s.Browse == nil {
		s.State = s.IdleState()
		return HelpText
	}
	snap, apology, ok := e.snapshot(ctx, t)
	if !ok {
		return apology
	}

	if t.cmd.Is("no", "siguiente", "next", "n", "skip") {
		s.Browse.Index++
		return e.showCurrent(ctx, t, snap)
	}

	add := t.cmd.Add
	if add == nil {
		return msgBrowseNotUnderstood
	}
	id := add.ProductID
	if add.Current() {
		current, ok := s.Browse.Current()
		if !ok {
			return e.exhaustCategory(ctx, t)
		}
		id = current
	}

	confirm, added := e.addToCart(t, snap, id, add.Quantity)
	if !added {
		return confirm
	}
	s.Browse.Index++
	return confirm + "\n\n" + e.showCurrent(ctx, t, snap)
}

// showCurrent renders the product under the cursor, skipping ids that left the catalog.
func (e *Engine) showCurrent(ctx context.Context, t *turn, snap catalog.Snapshot) string {
	s := t.session
	for !s.Browse.Exhausted() {
		id, _ := s.Browse.Current()
		p, ok := snap[id]
		if !ok {
			s.Browse.Index++
			continue
		}
		if p.ImageURL != "" {
			t.images = append(t.images, p.ImageURL)
		}
		e.events.ProductViewed(ctx, s.SenderID, p)
		return productCard(p)
	}
	return e.exhaustCategory(ctx, t)
}

// exhaustCategory drops the finished category from the pending list and decides
// where the walk continues.
func (e *Engine) exhaustCategory(ctx context.Context, t *turn) string {
	s := t.session
	finished := ""
	if s.Browse != nil {
		finished = s.Browse.Category
	}
	key := textnorm.Normalize(finished)
	s.PendingCategories = slices.DeleteFunc(s.PendingCategories, func(c string) bool {
		return textnorm.Normalize(c) == key
	})
	s.Browse = nil

	if len(s.PendingCategories) > 0 {
		s.State = model.StateChoosingCategory
		return categoryList(fmt.Sprintf("✔ Ya no hay más productos en *%s*.\n\nOtras categorías disponibles:\n", finished), s.PendingCategories) +
			"\n👉 Escribe la siguiente categoría o *finalizar pedido*."
	}

	s.State = s.IdleState()
	if len(s.Cart) > 0 {
		reply, _ := e.finalizer.Finalize(ctx, s)
		return reply
	}
	return msgNothingLeft
}

// addToCart validates the request against the cached stock, counting units
// already in the cart, and merges the line.
func (e *Engine) addToCart(t *turn, snap catalog.Snapshot, productID string, qty int) (string, bool) {
	p, ok := snap[productID]
	if !ok {
		return msgUnknownProduct, false
	}
	if qty < 1 {
		qty = 1
	}
	if p.Stock <= 0 {
		return fmt.Sprintf("❌ *%s* está agotado. No hay stock disponible.", p.Name), false
	}
	cart := &t.session.Cart
	if cart.Quantity(p.ID)+qty > p.Stock {
		return fmt.Sprintf("❌ Solo hay %d unidades de *%s* disponibles.", p.Stock, p.Name), false
	}

	existing := cart.Quantity(p.ID)
	line := cart.Add(p.Line(qty))
	switch {
	case existing > 0:
		return fmt.Sprintf("🛒 Actualizado: %dx *%s* en tu carrito.", line.Quantity, p.Name), true
	case qty > 1:
		return fmt.Sprintf("🛒 %dx *%s* agregado a tu pedido.", qty, p.Name), true
	default:
		return fmt.Sprintf("🛒 *%s* agregado a tu pedido.", p.Name), true
	}
}

func (e *Engine) addByID(ctx context.Context, t *turn) string {
	snap, apology, ok := e.snapshot(ctx, t)
	if !ok {
		return apology
	}
	confirm, added := e.addToCart(t, snap, t.cmd.Add.ProductID, t.cmd.Add.Quantity)
	if !added {
		return confirm
	}
	return confirm + "\n\nEscribe *ver carrito* o *finalizar pedido*."
}
