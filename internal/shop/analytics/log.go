package analytics

import (
	"context"

	"github.com/frerescollection/shopbot/internal/agent/model"
	logx "github.com/frerescollection/shopbot/pkg/logger"
)

// LogSink writes events to the structured log. Used when no broker is configured.
type LogSink struct{}

func (LogSink) Record(_ context.Context, event model.AnalyticsEvent) error {
	logx.Info().
		Str("event", string(event.Type)).
		Str("sender_id", event.SenderID).
		Time("timestamp", event.Timestamp).
		Interface("attributes", event.Attributes).
		Msg("analytics")
	return nil
}

var _ model.AnalyticsSink = LogSink{}
