// Package dialog is the conversation state machine: an ordered table of intents
// matched against the parsed command and the session state.
package dialog

import (
	"context"
	"time"

	"github.com/frerescollection/shopbot/internal/agent/command"
	"github.com/frerescollection/shopbot/internal/agent/model"
	"github.com/frerescollection/shopbot/internal/shop/analytics"
	"github.com/frerescollection/shopbot/internal/shop/catalog"
	"github.com/frerescollection/shopbot/internal/shop/checkout"
	"github.com/go-playground/validator/v10"
)

const IntentFallback = "fallback"

// Outcome is the result of one turn through the state machine.
type Outcome struct {
	Intent string
	Reply  string
	// Images are product pictures to send before Reply.
	Images []string
	// Matched is false when no intent claimed the message; Reply then holds the static help text.
	Matched bool
}

type Dependencies struct {
	Catalog   *catalog.Cache
	Users     model.UserStore
	Orders    model.OrderStore
	Inventory checkout.Inventory
	Finalizer *checkout.Finalizer
	Events    *analytics.Recorder
}

type Engine struct {
	catalog   *catalog.Cache
	users     model.UserStore
	orders    model.OrderStore
	inventory checkout.Inventory
	finalizer *checkout.Finalizer
	events    *analytics.Recorder

	business  model.BusinessConfig
	newWithin time.Duration
	timeout   time.Duration
	now       func() time.Time
	validate  *validator.Validate
	intents   []intent
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithBusiness(b model.BusinessConfig) Option {
	return func(e *Engine) { e.business = b }
}

// WithNewProductDays sets how recent a product must be to be listed as new.
func WithNewProductDays(days int) Option {
	return func(e *Engine) { e.newWithin = time.Duration(days) * 24 * time.Hour }
}

// WithTimeout bounds the collaborator calls made while handling one message.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

func NewEngine(deps Dependencies, opts ...Option) *Engine {
	e := &Engine{
		catalog:   deps.Catalog,
		users:     deps.Users,
		orders:    deps.Orders,
		inventory: deps.Inventory,
		finalizer: deps.Finalizer,
		events:    deps.Events,
		business: model.BusinessConfig{
			Name:    "Frere's Collection",
			Contact: "+52 55 1234 5678",
			Hours:   "Lunes a sábado: 10 AM – 7 PM.",
		},
		newWithin: 30 * 24 * time.Hour,
		now:       time.Now,
		validate:  validator.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.intents = e.table()
	return e
}

// turn carries the per-message values the handlers share.
type turn struct {
	session *model.Session
	cmd     command.Command
	images  []string
}

type intent struct {
	name   string
	match  func(cmd command.Command, s *model.Session) bool
	handle func(ctx context.Context, t *turn) string
}

// Handle runs the first intent whose matcher accepts the message. It mutates s in place.
func (e *Engine) Handle(ctx context.Context, s *model.Session, cmd command.Command) Outcome {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	t := &turn{session: s, cmd: cmd}
	for _, in := range e.intents {
		if !in.match(cmd, s) {
			continue
		}
		reply := in.handle(ctx, t)
		s.Normalize()
		return Outcome{Intent: in.name, Reply: reply, Images: t.images, Matched: true}
	}
	return Outcome{Intent: IntentFallback, Reply: HelpText}
}

// table is the canonical priority order. The first match wins.
func (e *Engine) table() []intent {
	return []intent{
		{"cancel_order", isCancelOrder, e.cancelOrder},
		{"cancel", isCancel, e.cancel},
		{"greeting", isGreeting, e.greeting},
		{"register", isRegister, e.startRegistration},
		{"login", isLogin, e.startLogin},
		{"registration_name", inState(model.StateRegisteringName), e.captureName},
		{"registration_phone", inState(model.StateRegisteringPhone), e.capturePhone},
		{"registration_address", inState(model.StateRegisteringAddress), e.captureAddress},
		{"login_phone", inState(model.StateLoggingIn), e.captureLoginPhone},
		{"contact", isContact, e.contact},
		{"hours", isHours, e.hours},
		{"new_products", isNewProducts, e.newProducts},
		{"offers", isOffers, e.offers},
		{"search", isSearch, e.search},
		{"price_range", isPriceRange, e.priceRange},
		{"stock", isStock, e.stock},
		{"order_lookup", isOrderLookup, e.orderLookup},
		{"last_order", isLastOrder, e.lastOrder},
		{"clear_cart", isClearCart, e.clearCart},
		{"remove_item", isRemoveItem, e.removeItem},
		{"view_cart", isViewCart, e.viewCart},
		{"catalog", isCatalog, e.showCategories},
		{"finalize", isFinalize, e.finalize},
		{"choose_category", inState(model.StateChoosingCategory), e.chooseCategory},
		{"browse", inState(model.StateBrowsingProduct), e.browse},
		{"choose_delivery", inState(model.StateChoosingDelivery), e.chooseDelivery},
		{"add_by_id", isExplicitAdd, e.addByID},
	}
}

func inState(state model.State) func(command.Command, *model.Session) bool {
	return func(_ command.Command, s *model.Session) bool { return s.State == state }
}

func isCancelOrder(c command.Command, _ *model.Session) bool {
	return c.StartsWith("cancelar pedido")
}

func isCancel(c command.Command, _ *model.Session) bool {
	return c.Has("cancelar")
}

func isGreeting(c command.Command, _ *model.Session) bool {
	return c.Has("hola", "buenas", "hello", "hi", "hey")
}

func isRegister(c command.Command, _ *model.Session) bool {
	return c.Is("registrar", "crear cuenta", "soy nuevo", "soy nueva")
}

func isLogin(c command.Command, _ *model.Session) bool {
	return c.StartsWith("iniciar sesion") || c.Is("entrar")
}

func isContact(c command.Command, _ *model.Session) bool {
	return c.Has("contacto", "whatsapp")
}

func isHours(c command.Command, _ *model.Session) bool {
	return c.Has("horario", "horarios", "abierto")
}

func isNewProducts(c command.Command, _ *model.Session) bool {
	return c.Has("nuevo", "nuevos", "novedades", "reciente", "recientes") ||
		c.HasPhrase("que hay de nuevo", "ultimos productos")
}

func isOffers(c command.Command, _ *model.Session) bool {
	return c.Has("oferta", "ofertas", "descuento", "descuentos", "promocion", "promociones", "rebaja", "barato")
}

func isSearch(c command.Command, _ *model.Session) bool {
	switch c.First() {
	case "buscar", "busco", "buscando":
		return true
	}
	return false
}

func isPriceRange(c command.Command, _ *model.Session) bool {
	return c.HasPhrase("menos de", "mas de", "precio menor", "precio mayor", "rango de precio") ||
		(c.First() == "entre" && len(c.Numbers) >= 2)
}

func isStock(c command.Command, _ *model.Session) bool {
	switch c.First() {
	case "stock":
		return true
	case "disponible", "hay":
		return len(c.Numbers) > 0
	}
	return false
}

func isOrderLookup(c command.Command, _ *model.Session) bool {
	return c.StartsWith("ver pedido", "consultar pedido", "estado pedido")
}

func isLastOrder(c command.Command, _ *model.Session) bool {
	return c.HasPhrase("mi pedido", "mi ultimo pedido", "mis pedidos", "ultimo pedido", "estado de mi pedido")
}

func isClearCart(c command.Command, _ *model.Session) bool {
	return c.HasPhrase("vaciar carrito", "limpiar carrito", "borrar carrito", "eliminar todo")
}

func isRemoveItem(c command.Command, _ *model.Session) bool {
	switch c.First() {
	case "quitar", "eliminar", "borrar":
		return true
	}
	return false
}

func isViewCart(c command.Command, _ *model.Session) bool {
	return c.Has("carrito") || c.HasPhrase("que tengo")
}

func isCatalog(c command.Command, _ *model.Session) bool {
	return c.Has("catalogo")
}

func isFinalize(c command.Command, _ *model.Session) bool {
	return c.Has("finalizar", "terminar", "completar", "listo") ||
		c.HasPhrase("cerrar pedido", "ya esta", "ya es todo") ||
		c.Is("ya", "fin")
}

func isExplicitAdd(c command.Command, _ *model.Session) bool {
	return c.Add != nil && !c.Add.Current() && !c.Numeric()
}

func (e *Engine) cancel(_ context.Context, t *turn) string {
	t.session.ClearTransient()
	t.session.State = model.StateStart
	return msgCancel
}

func (e *Engine) greeting(_ context.Context, _ *turn) string {
	return menuText(e.business.Name)
}

func (e *Engine) contact(_ context.Context, _ *turn) string {
	return "📱 WhatsApp: *" + e.business.Contact + "*"
}

func (e *Engine) hours(_ context.Context, _ *turn) string {
	return "🕒 " + e.business.Hours
}

func (e *Engine) finalize(ctx context.Context, t *turn) string {
	reply, _ := e.finalizer.Finalize(ctx, t.session)
	return reply
}
