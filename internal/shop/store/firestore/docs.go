package firestore

import (
	"time"

	"github.com/frerescollection/shopbot/internal/agent/model"
	"github.com/shopspring/decimal"
)

type productDoc struct {
	Name     string     `firestore:"nombre"`
	Price    float64    `firestore:"precio"`
	Stock    int        `firestore:"stock"`
	Category string     `firestore:"categoria"`
	ImageURL string     `firestore:"imagen_url"`
	Discount float64    `firestore:"descuento"`
	OnSale   bool       `firestore:"oferta"`
	AddedAt  *time.Time `firestore:"fecha_alta"`
}

func (d productDoc) toModel(id string) model.Product {
	return model.Product{
		ID:              id,
		Name:            d.Name,
		Price:           decimal.NewFromFloat(d.Price).Round(2),
		Stock:           d.Stock,
		Category:        d.Category,
		ImageURL:        d.ImageURL,
		DiscountPercent: d.Discount,
		OnSale:          d.OnSale,
		CreatedAt:       d.AddedAt,
	}
}

type userDoc struct {
	Name    string `firestore:"nombre"`
	Phone   string `firestore:"telefono"`
	Address string `firestore:"direccion"`
}

type lineDoc struct {
	ID       string  `firestore:"id"`
	Name     string  `firestore:"nombre"`
	Price    float64 `firestore:"precio"`
	Quantity int     `firestore:"cantidad"`
	Category string  `firestore:"categoria"`
	// Exact keeps the decimal unit price; precio stays numeric for the dashboard.
	Exact string `firestore:"precio_exacto"`
}

type orderDoc struct {
	Phone      string    `firestore:"telefono"`
	Name       string    `firestore:"nombre"`
	PlacedAt   time.Time `firestore:"fecha"`
	Status     string    `firestore:"estado"`
	Lines      []lineDoc `firestore:"productos"`
	Total      float64   `firestore:"total"`
	TotalExact string    `firestore:"total_exacto"`
	Delivery   string    `firestore:"entrega,omitempty"`
	Address    string    `firestore:"direccion,omitempty"`
}

func orderToDoc(o *model.Order) orderDoc {
	lines := make([]lineDoc, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, lineDoc{
			ID:       l.ProductID,
			Name:     l.Name,
			Price:    l.UnitPrice.InexactFloat64(),
			Quantity: l.Quantity,
			Category: l.Category,
			Exact:    l.UnitPrice.String(),
		})
	}
	return orderDoc{
		Phone:      o.Phone,
		Name:       o.CustomerName,
		PlacedAt:   o.CreatedAt,
		Status:     string(o.Status),
		Lines:      lines,
		Total:      o.Total.InexactFloat64(),
		TotalExact: o.Total.String(),
		Delivery:   string(o.DeliveryMethod),
		Address:    o.Address,
	}
}

func (d orderDoc) toModel(id string) *model.Order {
	lines := make([]model.CartLine, 0, len(d.Lines))
	for _, l := range d.Lines {
		qty := l.Quantity
		if qty == 0 {
			qty = 1
		}
		lines = append(lines, model.CartLine{
			ProductID: l.ID,
			Name:      l.Name,
			UnitPrice: exactOr(l.Exact, l.Price),
			Quantity:  qty,
			Category:  l.Category,
		})
	}
	status := model.OrderStatus(d.Status)
	if status == "" {
		status = model.OrderPending
	}
	return &model.Order{
		ID:             id,
		Phone:          d.Phone,
		CustomerName:   d.Name,
		CreatedAt:      d.PlacedAt,
		Status:         status,
		Lines:          lines,
		Total:          exactOr(d.TotalExact, d.Total),
		DeliveryMethod: model.DeliveryMethod(d.Delivery),
		Address:        d.Address,
	}
}

// exactOr parses the decimal string, falling back to the float for documents
// written before the exact field existed.
func exactOr(exact string, f float64) decimal.Decimal {
	if exact != "" {
		if d, err := decimal.NewFromString(exact); err == nil {
			return d
		}
	}
	return decimal.NewFromFloat(f)
}

type eventDoc struct {
	Type       string         `firestore:"tipo"`
	SenderID   string         `firestore:"usuario"`
	OccurredAt time.Time      `firestore:"fecha"`
	Attributes map[string]any `firestore:"datos"`
}
