package sqlstore

import (
	"time"

	"github.com/frerescollection/shopbot/internal/agent/model"
	"github.com/shopspring/decimal"
)

type productRow struct {
	ID       string          `gorm:"column:id;primaryKey"`
	Name     string          `gorm:"column:nombre;not null"`
	Price    decimal.Decimal `gorm:"column:precio;type:decimal(12,2);not null"`
	Stock    int             `gorm:"column:stock;not null;default:0"`
	Category string          `gorm:"column:categoria;index"`
	ImageURL string          `gorm:"column:imagen_url"`
	Discount float64         `gorm:"column:descuento;not null;default:0"`
	OnSale   bool            `gorm:"column:oferta;not null;default:false"`
	AddedAt  *time.Time      `gorm:"column:fecha_alta"`
}

func (productRow) TableName() string { return "productos" }

func (r productRow) toModel() model.Product {
	return model.Product{
		ID:              r.ID,
		Name:            r.Name,
		Price:           r.Price,
		Stock:           r.Stock,
		Category:        r.Category,
		ImageURL:        r.ImageURL,
		DiscountPercent: r.Discount,
		OnSale:          r.OnSale,
		CreatedAt:       r.AddedAt,
	}
}

func productFromModel(p model.Product) productRow {
	return productRow{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price,
		Stock:    p.Stock,
		Category: p.Category,
		ImageURL: p.ImageURL,
		Discount: p.DiscountPercent,
		OnSale:   p.OnSale,
		AddedAt:  p.CreatedAt,
	}
}

type userRow struct {
	Phone   string `gorm:"column:telefono;primaryKey"`
	Name    string `gorm:"column:nombre;not null"`
	Address string `gorm:"column:direccion"`
}

func (userRow) TableName() string { return "usuarios" }

type orderRow struct {
	ID       string           `gorm:"column:id;primaryKey"`
	Phone    string           `gorm:"column:telefono;index"`
	Name     string           `gorm:"column:nombre"`
	PlacedAt time.Time        `gorm:"column:fecha;index"`
	Status   string           `gorm:"column:estado;not null"`
	Lines    []model.CartLine `gorm:"column:productos;serializer:json"`
	Total    decimal.Decimal  `gorm:"column:total;type:decimal(12,2);not null"`
	Delivery string           `gorm:"column:entrega"`
	Address  string           `gorm:"column:direccion"`
}

func (orderRow) TableName() string { return "pedidos" }

func (r orderRow) toModel() *model.Order {
	return &model.Order{
		ID:             r.ID,
		Phone:          r.Phone,
		CustomerName:   r.Name,
		CreatedAt:      r.PlacedAt,
		Status:         model.OrderStatus(r.Status),
		Lines:          r.Lines,
		Total:          r.Total,
		DeliveryMethod: model.DeliveryMethod(r.Delivery),
		Address:        r.Address,
	}
}

type eventRow struct {
	ID         uint           `gorm:"column:id;primaryKey;autoIncrement"`
	Type       string         `gorm:"column:tipo;index"`
	SenderID   string         `gorm:"column:usuario"`
	OccurredAt time.Time      `gorm:"column:fecha"`
	Attributes map[string]any `gorm:"column:datos;serializer:json"`
}

func (eventRow) TableName() string { return "analytics" }
