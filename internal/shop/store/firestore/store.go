// Package firestore is the document Store backend over Cloud Firestore.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/frerescollection/shopbot/internal/agent/model"
	errx "github.com/frerescollection/shopbot/internal/core/error"
	logx "github.com/frerescollection/shopbot/pkg/logger"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	productsCollection  = "productos"
	usersCollection     = "usuarios"
	ordersCollection    = "pedidos"
	analyticsCollection = "analytics"
)

type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore client for projectID.
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}
	return &Store{client: client}, nil
}

// Client exposes the shared client so the session repository can reuse it.
func (s *Store) Client() *firestore.Client {
	return s.client
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ----- helpers -----

func (s *Store) productDoc(id string) *firestore.DocumentRef {
	return s.client.Collection(productsCollection).Doc(id)
}

func (s *Store) userDoc(phone string) *firestore.DocumentRef {
	return s.client.Collection(usersCollection).Doc(phone)
}

func (s *Store) ordersCol() *firestore.CollectionRef {
	return s.client.Collection(ordersCollection)
}

// ----- catalog -----

func (s *Store) ListProducts(ctx context.Context) ([]model.Product, error) {
	iter := s.client.Collection(productsCollection).Documents(ctx)
	defer iter.Stop()

	var out []model.Product
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			logx.Error().Err(err).Msg("firestore list products failed")
			return nil, errx.WrapFirestore(err)
		}
		var doc productDoc
		if err := snap.DataTo(&doc); err != nil {
			logx.Warn().Err(err).Str("product_id", snap.Ref.ID).Msg("skipping undecodable product")
			continue
		}
		out = append(out, doc.toModel(snap.Ref.ID))
	}
	return out, nil
}

// ----- stock -----

// DecrementStock reads and writes stock inside one transaction, so the
// conditional check and the write are atomic per product.
func (s *Store) DecrementStock(ctx context.Context, productID string, qty int) (int, error) {
	ref := s.productDoc(productID)
	var remaining int

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("product %s: %w", productID, errx.ErrProductNotFound)
			}
			return err
		}
		stock, err := stockOf(snap)
		if err != nil {
			return err
		}
		if stock < qty {
			remaining = stock
			return fmt.Errorf("product %s has %d: %w", productID, stock, errx.ErrInsufficientStock)
		}
		remaining = stock - qty
		return tx.Update(ref, []firestore.Update{{Path: "stock", Value: remaining}})
	})
	if err != nil {
		if errors.Is(err, errx.ErrInsufficientStock) || errors.Is(err, errx.ErrProductNotFound) {
			return remaining, err
		}
		logx.Error().Err(err).Str("product_id", productID).Msg("firestore decrement stock failed")
		return 0, errx.WrapFirestore(err)
	}
	return remaining, nil
}

func (s *Store) IncrementStock(ctx context.Context, productID string, qty int) error {
	_, err := s.productDoc(productID).Update(ctx, []firestore.Update{
		{Path: "stock", Value: firestore.Increment(qty)},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("product %s: %w", productID, errx.ErrProductNotFound)
		}
		logx.Error().Err(err).Str("product_id", productID).Msg("firestore increment stock failed")
		return errx.WrapFirestore(err)
	}
	return nil
}

func stockOf(snap *firestore.DocumentSnapshot) (int, error) {
	v, err := snap.DataAt("stock")
	if err != nil {
		return 0, nil
	}
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("product %s: unexpected stock type %T", snap.Ref.ID, v)
	}
}

// ----- users -----

func (s *Store) GetUser(ctx context.Context, phone string) (*model.User, error) {
	snap, err := s.userDoc(phone).Get(ctx)
	if err != nil {
		return nil, errx.WrapFirestore(err)
	}
	var doc userDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", phone, err)
	}
	return &model.User{Phone: phone, Name: doc.Name, Address: doc.Address}, nil
}

func (s *Store) SaveUser(ctx context.Context, user model.User) error {
	_, err := s.userDoc(user.Phone).Set(ctx, userDoc{
		Name:    user.Name,
		Phone:   user.Phone,
		Address: user.Address,
	})
	if err != nil {
		logx.Error().Err(err).Msg("firestore save user failed")
		return errx.WrapFirestore(err)
	}
	return nil
}

// ----- orders -----

func (s *Store) CreateOrder(ctx context.Context, order *model.Order) (string, error) {
	ref := s.ordersCol().NewDoc()
	if order.ID != "" {
		ref = s.ordersCol().Doc(order.ID)
	}
	if _, err := ref.Create(ctx, orderToDoc(order)); err != nil {
		logx.Error().Err(err).Msg("firestore create order failed")
		return "", errx.WrapFirestore(err)
	}
	return ref.ID, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	snap, err := s.ordersCol().Doc(id).Get(ctx)
	if err != nil {
		return nil, errx.WrapFirestore(err)
	}
	var doc orderDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode order %s: %w", id, err)
	}
	return doc.toModel(id), nil
}

func (s *Store) LatestOrderByPhone(ctx context.Context, phone string) (*model.Order, error) {
	iter := s.ordersCol().
		Where("telefono", "==", phone).
		OrderBy("fecha", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return nil, fmt.Errorf("orders for %s: %w", phone, errx.ErrNotFound)
	}
	if err != nil {
		return nil, errx.WrapFirestore(err)
	}
	var doc orderDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
	}
	return doc.toModel(snap.Ref.ID), nil
}

func (s *Store) SetDelivery(ctx context.Context, id string, method model.DeliveryMethod, address string) error {
	updates := []firestore.Update{{Path: "entrega", Value: string(method)}}
	if address != "" {
		updates = append(updates, firestore.Update{Path: "direccion", Value: address})
	}
	return s.updateOrder(ctx, id, updates)
}

func (s *Store) SetStatus(ctx context.Context, id string, st model.OrderStatus) error {
	return s.updateOrder(ctx, id, []firestore.Update{{Path: "estado", Value: string(st)}})
}

func (s *Store) updateOrder(ctx context.Context, id string, updates []firestore.Update) error {
	if _, err := s.ordersCol().Doc(id).Update(ctx, updates); err != nil {
		logx.Error().Err(err).Str("order_id", id).Msg("firestore update order failed")
		return errx.WrapFirestore(err)
	}
	return nil
}

// ----- analytics -----

func (s *Store) Record(ctx context.Context, event model.AnalyticsEvent) error {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.client.Collection(analyticsCollection).NewDoc().Set(ctx, eventDoc{
		Type:       string(event.Type),
		SenderID:   event.SenderID,
		OccurredAt: ts,
		Attributes: event.Attributes,
	})
	return errx.WrapFirestore(err)
}

var _ model.Store = (*Store)(nil)
