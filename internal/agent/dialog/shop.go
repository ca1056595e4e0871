package dialog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/frerescollection/shopbot/internal/agent/command"
	"github.com/frerescollection/shopbot/internal/agent/model"
	errx "github.com/frerescollection/shopbot/internal/core/error"
	logx "github.com/frerescollection/shopbot/pkg/logger"
	"github.com/shopspring/decimal"
)

const (
	listLimit   = 10
	searchLimit = 8
)

func (e *Engine) newProducts(ctx context.Context, t *turn) string {
	snap, apology, ok := e.snapshot(ctx, t)
	if !ok {
		return apology
	}
	now := e.now()
	products := snap.NewSince(now.Add(-e.newWithin), now)
	if len(products) == 0 {
		return msgNoNewProducts
	}
	days := int(e.newWithin.Hours() / 24)
	return productList(fmt.Sprintf("🆕 *Productos nuevos* (últimos %d días):\n\n", days), products, listLimit,
		func(p model.Product) string {
			return fmt.Sprintf("%s\n💰 %s MXN\n📂 %s\n🆔 ID: %s", p.Name, money(p.FinalPrice()), p.Category, p.ID)
		})
}

func (e *Engine) offers(ctx context.Context, t *turn) string {
	snap, apology, ok := e.snapshot(ctx, t)
	if !ok {
		return apology
	}
	products := snap.Offers()
	if len(products) == 0 {
		return msgNoOffers
	}
	return productList("🏷️ *Productos en oferta:*\n\n", products, listLimit, func(p model.Product) string {
		if p.DiscountPercent > 0 {
			return fmt.Sprintf("%s\n💵 Antes: %s MXN\n🔥 Ahora: %s MXN (%s%% OFF)\n🆔 ID: %s",
				p.Name, money(p.Price), money(p.FinalPrice()), percent(p.DiscountPercent), p.ID)
		}
		return fmt.Sprintf("%s\n💰 %s MXN\n🆔 ID: %s", p.Name, money(p.Price), p.ID)
	})
}

func (e *Engine) search(ctx context.Context, t *turn) string {
	term := t.cmd.After(1)
	if len([]rune(term)) < 2 {
		return msgSearchUsage
	}
	snap, apology, ok := e.snapshot(ctx, t)
	if !ok {
		return apology
	}
	results := snap.Search(term)
	e.events.Search(ctx, t.session.SenderID, term, len(results))
	if len(results) == 0 {
		return fmt.Sprintf("😕 No encontré productos con '%s'. Escribe *catalogo* para ver todos los productos.", term)
	}
	return productList(fmt.Sprintf("🔍 Encontré %d producto(s) con '%s':\n\n", len(results), term), results, searchLimit,
		func(p model.Product) string {
			availability := "✅ Disponible"
			if !p.InStock() {
				availability = "❌ Agotado"
			}
			return fmt.Sprintf("%s\n💰 %s MXN\n📦 %s\n🆔 ID: %s", p.Name, money(p.FinalPrice()), availability, p.ID)
		})
}

func (e *Engine) priceRange(ctx context.Context, t *turn) string {
	c := t.cmd
	first, ok := c.Int(0)
	if !ok {
		return msgPriceUsage
	}

	var (
		min, max *decimal.Decimal
		title    string
	)
	bound := decimal.NewFromInt(int64(first))
	switch {
	case c.HasPhrase("menos de", "precio menor"):
		max = &bound
		title = fmt.Sprintf("Productos de menos de $%d MXN", first)
	case c.HasPhrase("mas de", "precio mayor"):
		min = &bound
		title = fmt.Sprintf("Productos de más de $%d MXN", first)
	case c.Has("entre") && len(c.Numbers) >= 2:
		second, _ := c.Int(1)
		lo, hi := first, second
		if lo > hi {
			lo, hi = hi, lo
		}
		loD, hiD := decimal.NewFromInt(int64(lo)), decimal.NewFromInt(int64(hi))
		min, max = &loD, &hiD
		title = fmt.Sprintf("Productos entre $%d y $%d MXN", lo, hi)
	default:
		return msgPriceUsage
	}

	snap, apology, ok := e.snapshot(ctx, t)
	if !ok {
		return apology
	}
	results := snap.PriceRange(min, max)
	if len(results) == 0 {
		return msgNoPriceMatch
	}
	return productList("💵 *"+title+":*\n\n", results, listLimit, func(p model.Product) string {
		return fmt.Sprintf("%s\n💰 %s MXN\n🆔 ID: %s", p.Name, money(p.Price), p.ID)
	})
}

func (e *Engine) stock(ctx context.Context, t *turn) string {
	if len(t.cmd.Numbers) == 0 {
		return msgStockUsage
	}
	id := t.cmd.Numbers[0]
	p, found, err := e.catalog.Product(ctx, id)
	if err != nil {
		logx.Error().Err(err).Str("sender_id", t.session.SenderID).Msg("catalog unavailable")
		return MsgApology
	}
	if !found {
		return fmt.Sprintf("❌ No encontré el producto con ID %s.", id)
	}
	if p.InStock() {
		return fmt.Sprintf("✅ *%s*\n📦 Stock disponible: %d unidades\n🆔 ID: %s", p.Name, p.Stock, p.ID)
	}
	return fmt.Sprintf("❌ *%s*\n😕 Producto agotado\n🆔 ID: %s", p.Name, p.ID)
}

func (e *Engine) lastOrder(ctx context.Context, t *turn) string {
	s := t.session
	if !s.Authenticated() {
		return msgNeedsLogin
	}
	order, err := e.orders.LatestOrderByPhone(ctx, s.Profile.Phone)
	if errors.Is(err, errx.ErrNotFound) {
		return msgNoOrders
	}
	if err != nil {
		logx.Error().Err(err).Str("sender_id", s.SenderID).Msg("last order lookup failed")
		return MsgApology
	}
	return orderText("📦 *Tu último pedido:*\n\n", order)
}

// ownedOrder loads id and checks it belongs to the authenticated sender. Orders
// of other customers are reported as not found.
func (e *Engine) ownedOrder(ctx context.Context, t *turn, id string) (*model.Order, string) {
	s := t.session
	if !s.Authenticated() {
		return nil, msgNeedsLogin
	}
	order, err := e.orders.GetOrder(ctx, id)
	if errors.Is(err, errx.ErrNotFound) {
		return nil, msgOrderNotFound
	}
	if err != nil {
		logx.Error().Err(err).Str("sender_id", s.SenderID).Str("order_id", id).Msg("order lookup failed")
		return nil, MsgApology
	}
	if order.Phone != s.Profile.Phone {
		logx.Warn().Str("sender_id", s.SenderID).Str("order_id", id).Msg("order lookup for another customer")
		return nil, msgOrderNotFound
	}
	return order, ""
}

// orderID reads the third word of the sanitized message. Order ids keep their
// casing and hyphens, which normalization would strip.
func orderID(c command.Command) string {
	fields := strings.Fields(c.Clean)
	if len(fields) < 3 {
		return ""
	}
	return strings.Trim(fields[2], ".,;:!?¿¡*\"'")
}

func (e *Engine) orderLookup(ctx context.Context, t *turn) string {
	id := orderID(t.cmd)
	if id == "" {
		return msgOrderUsage
	}
	order, reply := e.ownedOrder(ctx, t, id)
	if order == nil {
		return reply
	}
	return orderText(fmt.Sprintf("🧾 *Pedido %s*\n", order.ID), order)
}

// cancelOrder marks a pending order cancelled and returns its units to stock.
func (e *Engine) cancelOrder(ctx context.Context, t *turn) string {
	id := orderID(t.cmd)
	if id == "" {
		return msgCancelOrderUsage
	}
	order, reply := e.ownedOrder(ctx, t, id)
	if order == nil {
		return reply
	}
	switch order.Status {
	case model.OrderPending:
	case model.OrderCancelled:
		return fmt.Sprintf("ℹ️ El pedido %s ya estaba cancelado.", order.ID)
	default:
		// Orders past pending are owned by fulfilment.
		return fmt.Sprintf("ℹ️ El pedido %s ya está %s y no se puede cancelar. Escríbenos para ayudarte.", order.ID, statusLabel(order.Status))
	}

	s := t.session
	if err := e.orders.SetStatus(ctx, order.ID, model.OrderCancelled); err != nil {
		logx.Error().Err(err).Str("sender_id", s.SenderID).Str("order_id", order.ID).Msg("cancel order failed")
		e.events.Error(ctx, s.SenderID, "cancelar_pedido", err)
		return msgCancelFailed
	}
	if err := e.inventory.Release(ctx, order.Lines); err != nil {
		logx.Error().Err(err).Str("order_id", order.ID).Msg("stock release after cancel incomplete")
	}
	if s.PendingOrderID == order.ID {
		s.PendingOrderID = ""
		if s.State == model.StateChoosingDelivery {
			s.State = s.IdleState()
		}
	}
	logx.Info().Str("sender_id", s.SenderID).Str("order_id", order.ID).Msg("order cancelled")
	return fmt.Sprintf("✅ Pedido %s cancelado. Los productos volvieron al inventario.", order.ID)
}

func (e *Engine) viewCart(_ context.Context, t *turn) string {
	return cartText(t.session.Cart)
}

func (e *Engine) removeItem(_ context.Context, t *turn) string {
	if len(t.cmd.Numbers) == 0 {
		return msgRemoveUsage
	}
	cart := &t.session.Cart
	if len(*cart) == 0 {
		return "🛒 Tu carrito está vacío."
	}
	id := t.cmd.Numbers[0]
	line, ok := cart.Remove(id)
	if !ok {
		return fmt.Sprintf("❌ No encontré el producto con ID %s en tu carrito.", id)
	}
	if len(*cart) > 0 {
		return fmt.Sprintf("✅ *%s* eliminado del carrito.\n\nEscribe *ver carrito* para revisar.", line.Name)
	}
	return fmt.Sprintf("✅ *%s* eliminado.\n\n🛒 Tu carrito está vacío ahora.", line.Name)
}

func (e *Engine) clearCart(_ context.Context, t *turn) string {
	n := len(t.session.Cart)
	if n == 0 {
		return msgCartAlreadyEmpty
	}
	t.session.Cart = model.Cart{}
	return fmt.Sprintf("🗑️ Carrito vaciado (%d producto(s) eliminado(s)).\n\nEscribe *catalogo* para seguir comprando.", n)
}

func (e *Engine) chooseDelivery(ctx context.Context, t *turn) string {
	s := t.session
	var method model.DeliveryMethod
	switch {
	case t.cmd.Has("domicilio", "casa", "enviar", "envio"):
		method = model.DeliveryHome
	case t.cmd.Has("recoger", "tienda", "pick"):
		method = model.DeliveryPickup
	default:
		return msgDeliveryChoice
	}

	id := s.PendingOrderID
	if id == "" {
		s.State = s.IdleState()
		return HelpText
	}
	address := ""
	if method == model.DeliveryHome && s.Profile != nil {
		address = s.Profile.Address
	}
	if err := e.orders.SetDelivery(ctx, id, method, address); err != nil {
		logx.Error().Err(err).Str("sender_id", s.SenderID).Str("order_id", id).Msg("set delivery failed")
		e.events.Error(ctx, s.SenderID, "entrega", err)
		return msgDeliveryFailed
	}

	s.PendingOrderID = ""
	s.State = s.IdleState()
	if method == model.DeliveryHome {
		return fmt.Sprintf("🚚 Tu pedido será enviado a tu domicilio.\n🧾 ID del pedido: %s", id)
	}
	return fmt.Sprintf("🏬 Puedes recoger tu pedido en la tienda.\n🧾 ID del pedido: %s", id)
}
