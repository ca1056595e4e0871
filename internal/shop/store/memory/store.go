// Package memory is an in-process Store for development and tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/frerescollection/shopbot/internal/agent/model"
	errx "github.com/frerescollection/shopbot/internal/core/error"
	"github.com/google/uuid"
)

type Store struct {
	mu       sync.RWMutex
	products map[string]model.Product
	users    map[string]model.User
	orders   map[string]model.Order
	events   []model.AnalyticsEvent
}

func NewStore(products ...model.Product) *Store {
	s := &Store{
		products: make(map[string]model.Product),
		users:    make(map[string]model.User),
		orders:   make(map[string]model.Order),
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

// PutProduct inserts or replaces a product.
func (s *Store) PutProduct(p model.Product) {
	s.mu.Lock()
	s.products[p.ID] = p
	s.mu.Unlock()
}

// Stock returns the current stock of id, or -1 when absent.
func (s *Store) Stock(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return -1
	}
	return p.Stock
}

// Orders returns every stored order.
func (s *Store) Orders() []model.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	return out
}

// Events returns recorded analytics events in order.
func (s *Store) Events() []model.AnalyticsEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events)
}

func (s *Store) ListProducts(_ context.Context) ([]model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) DecrementStock(_ context.Context, productID string, qty int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return 0, fmt.Errorf("product %s: %w", productID, errx.ErrProductNotFound)
	}
	if p.Stock < qty {
		return p.Stock, fmt.Errorf("product %s has %d: %w", productID, p.Stock, errx.ErrInsufficientStock)
	}
	p.Stock -= qty
	s.products[productID] = p
	return p.Stock, nil
}

func (s *Store) IncrementStock(_ context.Context, productID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return fmt.Errorf("product %s: %w", productID, errx.ErrProductNotFound)
	}
	p.Stock += qty
	s.products[productID] = p
	return nil
}

func (s *Store) GetUser(_ context.Context, phone string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[phone]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", phone, errx.ErrNotFound)
	}
	return &u, nil
}

func (s *Store) SaveUser(_ context.Context, user model.User) error {
	s.mu.Lock()
	s.users[user.Phone] = user
	s.mu.Unlock()
	return nil
}

func (s *Store) CreateOrder(_ context.Context, order *model.Order) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := order.ID
	if id == "" {
		id = uuid.NewString()
	}
	stored := *order
	stored.ID = id
	stored.Lines = slices.Clone(order.Lines)
	s.orders[id] = stored
	return id, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, errx.ErrNotFound)
	}
	o.Lines = slices.Clone(o.Lines)
	return &o, nil
}

func (s *Store) LatestOrderByPhone(_ context.Context, phone string) (*model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *model.Order
	for _, o := range s.orders {
		if o.Phone != phone {
			continue
		}
		if latest == nil || o.CreatedAt.After(latest.CreatedAt) {
			o := o
			latest = &o
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("orders for %s: %w", phone, errx.ErrNotFound)
	}
	return latest, nil
}

func (s *Store) SetDelivery(_ context.Context, id string, method model.DeliveryMethod, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return fmt.Errorf("order %s: %w", id, errx.ErrNotFound)
	}
	o.DeliveryMethod = method
	if address != "" {
		o.Address = address
	}
	s.orders[id] = o
	return nil
}

func (s *Store) SetStatus(_ context.Context, id string, status model.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return fmt.Errorf("order %s: %w", id, errx.ErrNotFound)
	}
	o.Status = status
	s.orders[id] = o
	return nil
}

func (s *Store) Record(_ context.Context, event model.AnalyticsEvent) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return nil
}

var _ model.Store = (*Store)(nil)
