// Package sqlstore is the relational Store backend (Postgres in production, SQLite in tests).
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/frerescollection/shopbot/internal/agent/model"
	errx "github.com/frerescollection/shopbot/internal/core/error"
	logx "github.com/frerescollection/shopbot/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Store struct {
	db *gorm.DB
}

// Open connects to driver ("postgres" or "sqlite") and migrates the schema.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("database DSN is required")
	}
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.New(postgres.Config{DSN: dsn, PreferSimpleProtocol: true})
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(
			log.New(io.Discard, "", log.LstdFlags),
			gormlogger.Config{LogLevel: gormlogger.Silent},
		),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening db connection: %w", err)
	}
	s, err := New(ctx, db)
	if err != nil {
		return nil, err
	}
	logx.Info().Str("driver", driver).Msg("database connection established")
	return s, nil
}

// New wraps an open connection and migrates the schema.
func New(ctx context.Context, db *gorm.DB) (*Store, error) {
	if err := db.WithContext(ctx).AutoMigrate(&productRow{}, &userRow{}, &orderRow{}, &eventRow{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Ping checks the underlying connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// PutProduct upserts a catalog entry. The bot never calls it; seeding and tests do.
func (s *Store) PutProduct(ctx context.Context, p model.Product) error {
	row := productFromModel(p)
	return errx.WrapSQL(s.db.WithContext(ctx).Save(&row).Error)
}

func (s *Store) ListProducts(ctx context.Context) ([]model.Product, error) {
	var rows []productRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		logx.Error().Err(err).Msg("list products failed")
		return nil, errx.WrapSQL(err)
	}
	out := make([]model.Product, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// DecrementStock is a single conditional UPDATE; concurrent callers can never
// take stock below zero.
func (s *Store) DecrementStock(ctx context.Context, productID string, qty int) (int, error) {
	db := s.db.WithContext(ctx)
	res := db.Model(&productRow{}).
		Where("id = ? AND stock >= ?", productID, qty).
		UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		logx.Error().Err(res.Error).Str("product_id", productID).Msg("decrement stock failed")
		return 0, errx.WrapSQL(res.Error)
	}

	var row productRow
	if err := db.Select("id", "stock").First(&row, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("product %s: %w", productID, errx.ErrProductNotFound)
		}
		return 0, errx.WrapSQL(err)
	}
	if res.RowsAffected == 0 {
		return row.Stock, fmt.Errorf("product %s has %d: %w", productID, row.Stock, errx.ErrInsufficientStock)
	}
	return row.Stock, nil
}

func (s *Store) IncrementStock(ctx context.Context, productID string, qty int) error {
	res := s.db.WithContext(ctx).Model(&productRow{}).
		Where("id = ?", productID).
		UpdateColumn("stock", gorm.Expr("stock + ?", qty))
	if res.Error != nil {
		logx.Error().Err(res.Error).Str("product_id", productID).Msg("increment stock failed")
		return errx.WrapSQL(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("product %s: %w", productID, errx.ErrProductNotFound)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, phone string) (*model.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).First(&row, "telefono = ?", phone).Error; err != nil {
		return nil, errx.WrapSQL(err)
	}
	return &model.User{Phone: row.Phone, Name: row.Name, Address: row.Address}, nil
}

func (s *Store) SaveUser(ctx context.Context, user model.User) error {
	row := userRow{Phone: user.Phone, Name: user.Name, Address: user.Address}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		logx.Error().Err(err).Msg("save user failed")
		return errx.WrapSQL(err)
	}
	return nil
}

func (s *Store) CreateOrder(ctx context.Context, order *model.Order) (string, error) {
	id := order.ID
	if id == "" {
		id = uuid.NewString()
	}
	row := orderRow{
		ID:       id,
		Phone:    order.Phone,
		Name:     order.CustomerName,
		PlacedAt: order.CreatedAt,
		Status:   string(order.Status),
		Lines:    order.Lines,
		Total:    order.Total,
		Delivery: string(order.DeliveryMethod),
		Address:  order.Address,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		logx.Error().Err(err).Msg("create order failed")
		return "", errx.WrapSQL(err)
	}
	return id, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	var row orderRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, errx.WrapSQL(err)
	}
	return row.toModel(), nil
}

func (s *Store) LatestOrderByPhone(ctx context.Context, phone string) (*model.Order, error) {
	var row orderRow
	err := s.db.WithContext(ctx).
		Where("telefono = ?", phone).
		Order("fecha DESC").
		First(&row).Error
	if err != nil {
		return nil, errx.WrapSQL(err)
	}
	return row.toModel(), nil
}

func (s *Store) SetDelivery(ctx context.Context, id string, method model.DeliveryMethod, address string) error {
	updates := map[string]any{"entrega": string(method)}
	if address != "" {
		updates["direccion"] = address
	}
	return s.updateOrder(ctx, id, updates)
}

func (s *Store) SetStatus(ctx context.Context, id string, status model.OrderStatus) error {
	return s.updateOrder(ctx, id, map[string]any{"estado": string(status)})
}

func (s *Store) updateOrder(ctx context.Context, id string, updates map[string]any) error {
	res := s.db.WithContext(ctx).Model(&orderRow{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		logx.Error().Err(res.Error).Str("order_id", id).Msg("update order failed")
		return errx.WrapSQL(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("order %s: %w", id, errx.ErrNotFound)
	}
	return nil
}

func (s *Store) Record(ctx context.Context, event model.AnalyticsEvent) error {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	row := eventRow{
		Type:       string(event.Type),
		SenderID:   event.SenderID,
		OccurredAt: ts,
		Attributes: event.Attributes,
	}
	return errx.WrapSQL(s.db.WithContext(ctx).Create(&row).Error)
}

var _ model.Store = (*Store)(nil)
