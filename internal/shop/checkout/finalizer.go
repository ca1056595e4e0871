// Package checkout turns a session cart into a persisted order.
package checkout

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/frerescollection/shopbot/internal/agent/model"
	errx "github.com/frerescollection/shopbot/internal/core/error"
	"github.com/frerescollection/shopbot/internal/shop/analytics"
	logx "github.com/frerescollection/shopbot/pkg/logger"
)

const (
	MsgEmptyCart     = "🛍 No tienes productos en tu pedido. Escribe *catalogo* para ver productos."
	MsgNeedsAccount  = "🔐 Necesitas una cuenta para finalizar tu pedido.\nEscribe *registrar* o *iniciar sesion*."
	MsgOutOfStock    = "❌ No hay stock suficiente para completar tu pedido. Algunos productos se agotaron. Por favor revisa tu carrito."
	MsgOrderFailed   = "❌ Hubo un error al procesar tu pedido. Por favor intenta de nuevo más tarde."
	msgOrderAccepted = "🧾 *Pedido registrado*: %s\n\n" +
		"📦 ¿Cómo deseas recibirlo?\n" +
		"• *Domicilio*\n" +
		"• *Recoger en tienda*\n\n" +
		"Escribe una opción."
)

// Inventory commits and releases stock for cart lines.
type Inventory interface {
	Commit(ctx context.Context, lines []model.CartLine) error
	Release(ctx context.Context, lines []model.CartLine) error
}

type Finalizer struct {
	inventory Inventory
	orders    model.OrderStore
	events    *analytics.Recorder
	now       func() time.Time
}

type Option func(*Finalizer)

func WithClock(now func() time.Time) Option {
	return func(f *Finalizer) { f.now = now }
}

func WithRecorder(r *analytics.Recorder) Option {
	return func(f *Finalizer) { f.events = r }
}

func NewFinalizer(inventory Inventory, orders model.OrderStore, opts ...Option) *Finalizer {
	f := &Finalizer{inventory: inventory, orders: orders, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Finalize commits the cart of s and records the order. It always returns the
// reply for the sender; the error is for logging. The session is only mutated
// when the order was persisted.
func (f *Finalizer) Finalize(ctx context.Context, s *model.Session) (string, error) {
	if len(s.Cart) == 0 {
		return MsgEmptyCart, nil
	}
	if !s.Authenticated() {
		return MsgNeedsAccount, nil
	}

	lines := slices.Clone(s.Cart)
	total := s.Cart.Total()
	log := logx.With(s.SenderID)

	if err := f.inventory.Commit(ctx, lines); err != nil {
		f.events.Error(ctx, s.SenderID, "finalizar_pedido", err)
		if errx.IsInventoryConflict(err) {
			log.Info().Err(err).Msg("checkout refused by inventory")
			return MsgOutOfStock, err
		}
		log.Error().Err(err).Msg("checkout inventory commit failed")
		return MsgOrderFailed, err
	}

	order := &model.Order{
		Phone:        s.Profile.Phone,
		CustomerName: s.Profile.Name,
		CreatedAt:    f.now().UTC(),
		Status:       model.OrderPending,
		Lines:        lines,
		Total:        total,
		Address:      s.Profile.Address,
	}
	id, err := f.orders.CreateOrder(ctx, order)
	if err != nil {
		if relErr := f.inventory.Release(ctx, lines); relErr != nil {
			log.Error().Err(relErr).Msg("stock release after failed order write")
		}
		f.events.Error(ctx, s.SenderID, "finalizar_pedido", err)
		log.Error().Err(err).Msg("order write failed")
		return MsgOrderFailed, fmt.Errorf("create order: %w", err)
	}

	f.events.Conversion(ctx, s.SenderID, id, total, len(lines))
	log.Info().
		Str("order_id", id).
		Str("total", total.StringFixed(2)).
		Int("lines", len(lines)).
		Msg("order registered")

	s.Cart = model.Cart{}
	s.Browse = nil
	s.PendingCategories = nil
	s.PendingOrderID = id
	s.State = model.StateChoosingDelivery
	return fmt.Sprintf(msgOrderAccepted, id), nil
}
