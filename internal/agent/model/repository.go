package model

import (
	"context"
	"time"
)

type SessionRepository interface {
	// Load returns the stored session for senderID or an error wrapping errx.ErrNotFound.
	// Expired copies are deleted and reported as not found.
	Load(ctx context.Context, senderID string) (*Session, error)

	// Save writes the full session, replacing any previous copy.
	Save(ctx context.Context, session *Session) error

	// Delete removes the stored session.
	Delete(ctx context.Context, senderID string) error

	// DeleteIdleBefore removes sessions whose last activity is older than cutoff.
	DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int, error)
}

type CatalogReader interface {
	// ListProducts returns the full catalog.
	ListProducts(ctx context.Context) ([]Product, error)
}

type StockStore interface {
	// DecrementStock subtracts qty only if at least qty units remain, and returns the new stock.
	// It fails with errx.ErrInsufficientStock or errx.ErrProductNotFound without writing.
	DecrementStock(ctx context.Context, productID string, qty int) (int, error)

	// IncrementStock adds qty back to the product.
	IncrementStock(ctx context.Context, productID string, qty int) error
}

type UserStore interface {
	GetUser(ctx context.Context, phone string) (*User, error)
	SaveUser(ctx context.Context, user User) error
}

type OrderStore interface {
	// CreateOrder persists order and returns its id.
	CreateOrder(ctx context.Context, order *Order) (string, error)
	GetOrder(ctx context.Context, id string) (*Order, error)
	LatestOrderByPhone(ctx context.Context, phone string) (*Order, error)
	SetDelivery(ctx context.Context, id string, method DeliveryMethod, address string) error
	SetStatus(ctx context.Context, id string, status OrderStatus) error
}

type AnalyticsSink interface {
	Record(ctx context.Context, event AnalyticsEvent) error
}

// Store is everything a document or SQL backend provides to the bot.
type Store interface {
	CatalogReader
	StockStore
	UserStore
	OrderStore
	AnalyticsSink
}

type Messenger interface {
	SendText(ctx context.Context, recipientID, text string) error
	SendImage(ctx context.Context, recipientID, imageURL string) error
}
