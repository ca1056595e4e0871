package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry. Only Stock is mutated by the bot.
type Product struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"`
	Stock           int             `json:"stock"`
	Category        string          `json:"category"`
	ImageURL        string          `json:"image_url,omitempty"`
	DiscountPercent float64         `json:"discount_percent,omitempty"`
	OnSale          bool            `json:"on_sale,omitempty"`
	CreatedAt       *time.Time      `json:"created_at,omitempty"`
}

// InStock reports whether at least one unit is available.
func (p Product) InStock() bool {
	return p.Stock > 0
}

// Discounted reports whether the product should be listed among offers.
func (p Product) Discounted() bool {
	return p.DiscountPercent > 0 || p.OnSale
}

// FinalPrice applies DiscountPercent to Price, rounded to cents.
func (p Product) FinalPrice() decimal.Decimal {
	if p.DiscountPercent <= 0 {
		return p.Price
	}
	factor := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(p.DiscountPercent).Div(decimal.NewFromInt(100)))
	return p.Price.Mul(factor).Round(2)
}

// Line builds a cart line for qty units of p at its final price.
func (p Product) Line(qty int) CartLine {
	return CartLine{
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.FinalPrice(),
		Quantity:  qty,
		Category:  p.Category,
	}
}

// OrderStatus is the workflow status of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCancelled OrderStatus = "cancelled"
)

// DeliveryMethod is chosen in the turn after checkout.
type DeliveryMethod string

const (
	DeliveryNone   DeliveryMethod = ""
	DeliveryHome   DeliveryMethod = "domicilio"
	DeliveryPickup DeliveryMethod = "tienda"
)

// Order is created once at checkout. Lines are immutable afterwards.
type Order struct {
	ID             string          `json:"id"`
	Phone          string          `json:"phone"`
	CustomerName   string          `json:"customer_name"`
	CreatedAt      time.Time       `json:"created_at"`
	Status         OrderStatus     `json:"status"`
	Lines          []CartLine      `json:"lines"`
	Total          decimal.Decimal `json:"total"`
	DeliveryMethod DeliveryMethod  `json:"delivery_method,omitempty"`
	Address        string          `json:"address,omitempty"`
}

// EventType names an analytics event.
type EventType string

const (
	EventMessage       EventType = "mensaje"
	EventProductViewed EventType = "producto_visto"
	EventSearch        EventType = "busqueda"
	EventConversion    EventType = "conversion"
	EventError         EventType = "error"
)

// AnalyticsEvent is appended to the analytics sink.
type AnalyticsEvent struct {
	Type       EventType      `json:"type"`
	SenderID   string         `json:"sender_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Attributes map[string]any `json:"attributes,omitempty"`
}
