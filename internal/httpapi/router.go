// Package httpapi exposes the Messenger webhook, health and metrics endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/frerescollection/shopbot/internal/agent/model"
	logx "github.com/frerescollection/shopbot/pkg/logger"
)

// TurnHandler runs one conversation turn.
type TurnHandler interface {
	Handle(ctx context.Context, in model.Inbound) (*model.TurnResult, error)
}

type Dependencies struct {
	Turns     TurnHandler
	Messenger model.MessengerConfig
	// Gatherer backs /metrics. Nil serves the default registry.
	Gatherer prometheus.Gatherer
}

func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(Recoverer, RequestID, Logging)

	webhook := NewWebhook(deps.Turns, deps.Messenger.VerifyToken, deps.Messenger.AppSecret)
	r.Get("/webhook", webhook.Verify)
	r.Post("/webhook", webhook.Receive)
	r.Get("/healthz", Healthz)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logx.Error().Err(err).Msg("failed to write response")
	}
}
