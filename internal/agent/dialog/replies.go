package dialog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/frerescollection/shopbot/internal/agent/model"
	"github.com/shopspring/decimal"
)

const (
	// MsgApology is the generic reply when a collaborator fails.
	MsgApology = "😓 Tuvimos un problema al procesar tu mensaje. Por favor intenta de nuevo en un momento."
	msgCancel  = "❎ Operación cancelada. Escribe *hola* para ver el menú."

	msgAskName            = "📝 ¿Cuál es tu nombre completo?"
	msgAskPhone           = "📱 Escribe tu número telefónico (10 dígitos)."
	msgBadPhone           = "❌ Escribe un número válido de 10 dígitos."
	msgAskAddress         = "📍 Escribe tu dirección completa."
	msgRegistrationFailed = "❌ Hubo un error al completar tu registro. Por favor intenta de nuevo."
	msgAskLoginPhone      = "🔐 Escribe tu número telefónico registrado."
	msgUnknownPhone       = "❌ Ese número no está registrado. Escribe *registrar* para crear cuenta."
	msgLoginFailed        = "❌ Hubo un error al iniciar sesión. Por favor intenta de nuevo."
	msgNeedsLogin         = "❌ Necesitas iniciar sesión primero. Escribe *iniciar sesion*."
	msgCatalogHint        = "Escribe *catalogo* para ver productos."

	msgNoCategories        = "😕 No hay categorías con productos disponibles."
	msgUnknownCategory     = "❌ No reconocí esa categoría."
	msgEmptyCategory       = "😕 No hay productos en esa categoría."
	msgNothingLeft         = "No hay más categorías con productos y no agregaste nada al carrito.\nEscribe *catalogo* para empezar de nuevo."
	msgBrowseNotUnderstood = "🤔 No entendí.\n" +
		"Escribe *si*, *sí*, *pedido ID*, el *ID*,\n" +
		"*2x ID* para cantidad, o *no* para avanzar."
	msgAddHint = "Para agregar al pedido escribe: *si ID* o *pedido ID*"

	msgUnknownProduct = "❌ Ese ID de producto no existe."

	msgEmptyCart        = "🛒 Tu carrito está vacío.\n\nEscribe *catalogo* para ver productos."
	msgCartAlreadyEmpty = "🛒 Tu carrito ya está vacío."
	msgRemoveUsage      = "❌ Escribe: *quitar ID_PRODUCTO*\nEjemplo: *quitar 123*"

	msgDeliveryChoice = "❌ Escribe *domicilio* o *recoger en tienda*."
	msgDeliveryFailed = "❌ Hubo un error al procesar tu método de entrega. Por favor contacta con soporte."

	msgNoNewProducts = "😕 No hay productos nuevos en este momento. Escribe *catalogo* para ver todos los productos."
	msgNoOffers      = "😕 No hay ofertas activas en este momento. Escribe *catalogo* para ver todos los productos."
	msgSearchUsage   = "🔍 Escribe: *buscar NOMBRE_PRODUCTO*\nEjemplo: *buscar blusa*"
	msgPriceUsage    = "💵 Escribe:\n• *menos de 500*\n• *mas de 200*\n• *entre 100 y 500*"
	msgNoPriceMatch  = "😕 No encontré productos en ese rango de precio."
	msgStockUsage    = "📦 Escribe: *stock ID_PRODUCTO*\nEjemplo: *stock 123*"

	msgNoOrders         = "📭 No tienes pedidos registrados aún."
	msgOrderUsage       = "Escribe: *ver pedido IDPEDIDO*"
	msgOrderNotFound    = "❌ No encontré ese pedido."
	msgCancelOrderUsage = "Escribe: *cancelar pedido IDPEDIDO*"
	msgCancelFailed     = "❌ No pudimos cancelar tu pedido. Por favor intenta de nuevo más tarde."

	// MsgThrottled is the single notice sent when a sender exceeds the rate limit.
	MsgThrottled = "⏱️ Por favor espera un momento antes de enviar más mensajes."
)

func menuText(business string) string {
	return "👋 Hola, soy " + business + ".\n\n" +
		"Puedo ayudarte con:\n" +
		"🛍 Catalogo\n" +
		"📝 Registrar\n" +
		"🔐 Iniciar sesion\n" +
		"🆕 Novedades\n" +
		"💰 Ofertas\n" +
		"🔍 Buscar producto\n" +
		"📦 Mi ultimo pedido\n" +
		"🕒 Horario\n" +
		"📞 Contacto"
}

// HelpText is the static reply when nothing matched and no completion model answers.
const HelpText = "🤔 No entendí.\n\n" +
	"Puedo ayudarte con:\n" +
	"🛍 Catalogo\n" +
	"📝 Registrar\n" +
	"🔐 Iniciar sesion\n" +
	"🕒 Horario\n" +
	"📞 Contacto"

func money(d decimal.Decimal) string {
	if d.Equal(d.Truncate(0)) {
		return "$" + d.Truncate(0).String()
	}
	return "$" + d.StringFixed(2)
}

func percent(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func categoryList(header string, categories []string) string {
	var b strings.Builder
	b.WriteString(header)
	for i, c := range categories {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}
	return b.String()
}

func productCard(p model.Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔹 *%s*\n", p.Name)
	if p.DiscountPercent > 0 {
		fmt.Fprintf(&b, "💰 %s MXN (antes %s, %s%% OFF)\n", money(p.FinalPrice()), money(p.Price), percent(p.DiscountPercent))
	} else {
		fmt.Fprintf(&b, "💰 %s MXN\n", money(p.Price))
	}
	fmt.Fprintf(&b, "🆔 ID: %s\n\n", p.ID)
	b.WriteString("Para agregarlo al pedido puedes escribir:\n")
	fmt.Fprintf(&b, "• *si %s*\n", p.ID)
	fmt.Fprintf(&b, "• *sí %s*\n", p.ID)
	fmt.Fprintf(&b, "• *pedido %s*\n", p.ID)
	fmt.Fprintf(&b, "• o solo el ID: *%s*\n\n", p.ID)
	b.WriteString("Para pasar al siguiente: *no* o *siguiente*\n")
	b.WriteString("Para terminar: *finalizar pedido*")
	return b.String()
}

func cartText(cart model.Cart) string {
	if len(cart) == 0 {
		return msgEmptyCart
	}
	var b strings.Builder
	b.WriteString("🛒 *Tu carrito:*\n\n")
	for i, l := range cart {
		if l.Quantity > 1 {
			fmt.Fprintf(&b, "%d. %dx %s\n", i+1, l.Quantity, l.Name)
			fmt.Fprintf(&b, "   💰 %s c/u = %s MXN\n", money(l.UnitPrice), money(l.Subtotal()))
		} else {
			fmt.Fprintf(&b, "%d. %s\n", i+1, l.Name)
			fmt.Fprintf(&b, "   💰 %s MXN\n", money(l.UnitPrice))
		}
		fmt.Fprintf(&b, "   🆔 ID: %s\n\n", l.ProductID)
	}
	b.WriteString("━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(&b, "💵 *Total: %s MXN*\n\n", money(cart.Total()))
	b.WriteString("Opciones:\n")
	b.WriteString("• *quitar ID* - Eliminar producto\n")
	b.WriteString("• *vaciar carrito* - Limpiar todo\n")
	b.WriteString("• *finalizar pedido* - Proceder al pago")
	return b.String()
}

// productList renders at most limit products under title.
func productList(title string, products []model.Product, limit int, line func(p model.Product) string) string {
	var b strings.Builder
	b.WriteString(title)
	for i, p := range products {
		if i == limit {
			break
		}
		fmt.Fprintf(&b, "%d. %s\n\n", i+1, line(p))
	}
	b.WriteString(msgAddHint)
	return b.String()
}

func statusLabel(s model.OrderStatus) string {
	switch s {
	case model.OrderPending, "":
		return "pendiente"
	case model.OrderCancelled:
		return "cancelado"
	default:
		return "en proceso (" + string(s) + ")"
	}
}

func deliveryLabel(d model.DeliveryMethod) string {
	switch d {
	case model.DeliveryHome:
		return "domicilio"
	case model.DeliveryPickup:
		return "recoger en tienda"
	default:
		return "por definir"
	}
}

func orderText(title string, o *model.Order) string {
	var b strings.Builder
	b.WriteString(title)
	fmt.Fprintf(&b, "🆔 ID: %s\n", o.ID)
	fmt.Fprintf(&b, "📌 Estado: %s\n", statusLabel(o.Status))
	fmt.Fprintf(&b, "🚚 Entrega: %s\n", deliveryLabel(o.DeliveryMethod))
	fmt.Fprintf(&b, "💵 Total: %s MXN\n", money(o.Total))
	fmt.Fprintf(&b, "📅 Fecha: %s\n\n", o.CreatedAt.Format("2006-01-02 15:04"))
	b.WriteString("📦 Productos:\n")
	for _, l := range o.Lines {
		fmt.Fprintf(&b, "• %dx %s - %s (ID: %s)\n", l.Quantity, l.Name, money(l.UnitPrice), l.ProductID)
	}
	return strings.TrimRight(b.String(), "\n")
}
