// Package analytics records conversation events without ever failing a turn.
package analytics

import (
	"context"
	"time"

	"github.com/frerescollection/shopbot/internal/agent/model"
	logx "github.com/frerescollection/shopbot/pkg/logger"
	"github.com/shopspring/decimal"
)

const (
	DirectionIn  = "entrante"
	DirectionOut = "saliente"

	// previewRunes caps message text stored with an event.
	previewRunes = 100
)

// Recorder stamps events and hands them to a sink. A nil *Recorder drops everything.
type Recorder struct {
	sink    model.AnalyticsSink
	now     func() time.Time
	timeout time.Duration
}

type Option func(*Recorder)

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithTimeout bounds each sink write.
func WithTimeout(d time.Duration) Option {
	return func(r *Recorder) { r.timeout = d }
}

func NewRecorder(sink model.AnalyticsSink, opts ...Option) *Recorder {
	r := &Recorder{sink: sink, now: time.Now, timeout: 3 * time.Second}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record writes one event. Sink errors are logged and swallowed.
func (r *Recorder) Record(ctx context.Context, typ model.EventType, senderID string, attrs map[string]any) {
	if r == nil || r.sink == nil {
		return
	}
	event := model.AnalyticsEvent{
		Type:       typ,
		SenderID:   senderID,
		Timestamp:  r.now().UTC(),
		Attributes: attrs,
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
	}
	if err := r.sink.Record(ctx, event); err != nil {
		logx.Warn().Err(err).
			Str("sender_id", senderID).
			Str("event", string(typ)).
			Msg("analytics event dropped")
	}
}

// Message records an inbound or outbound text.
func (r *Recorder) Message(ctx context.Context, senderID, direction, text string) {
	r.Record(ctx, model.EventMessage, senderID, map[string]any{
		"direccion": direction,
		"texto":     preview(text),
		"longitud":  len([]rune(text)),
	})
}

// ProductViewed records a product card shown to the sender.
func (r *Recorder) ProductViewed(ctx context.Context, senderID string, p model.Product) {
	r.Record(ctx, model.EventProductViewed, senderID, map[string]any{
		"producto_id": p.ID,
		"nombre":      p.Name,
		"categoria":   p.Category,
	})
}

// Search records a catalog search and how many products matched.
func (r *Recorder) Search(ctx context.Context, senderID, query string, results int) {
	r.Record(ctx, model.EventSearch, senderID, map[string]any{
		"termino":     query,
		"resultados":  results,
		"encontrados": results > 0,
	})
}

// Conversion records a finalized order.
func (r *Recorder) Conversion(ctx context.Context, senderID, orderID string, total decimal.Decimal, items int) {
	r.Record(ctx, model.EventConversion, senderID, map[string]any{
		"pedido_id": orderID,
		"total":     total.StringFixed(2),
		"productos": items,
	})
}

// Error records a failure surfaced to the sender.
func (r *Recorder) Error(ctx context.Context, senderID, where string, err error) {
	attrs := map[string]any{"origen": where}
	if err != nil {
		attrs["mensaje"] = preview(err.Error())
	}
	r.Record(ctx, model.EventError, senderID, attrs)
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewRunes {
		return s
	}
	return string(r[:previewRunes])
}
