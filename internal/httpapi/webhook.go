package httpapi

import (
	"context"
	"io"
	"net/http"

	"github.com/frerescollection/shopbot/internal/messenger"
	logx "github.com/frerescollection/shopbot/pkg/logger"
)

const maxWebhookBody = 1 << 20

// Webhook serves the Messenger subscription handshake and message deliveries.
type Webhook struct {
	turns       TurnHandler
	verifyToken string
	appSecret   string
}

func NewWebhook(turns TurnHandler, verifyToken, appSecret string) *Webhook {
	return &Webhook{turns: turns, verifyToken: verifyToken, appSecret: appSecret}
}

// Verify echoes hub.challenge when hub.verify_token matches.
func (h *Webhook) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if h.verifyToken == "" || q.Get("hub.verify_token") != h.verifyToken {
		logx.Warn().Str("mode", q.Get("hub.mode")).Msg("webhook verification rejected")
		http.Error(w, "Token inválido", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, q.Get("hub.challenge"))
}

// Receive runs one turn per customer message, in envelope order, and always
// acknowledges a well-formed delivery so the platform does not retry it.
func (h *Webhook) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "cuerpo inválido", http.StatusBadRequest)
		return
	}
	if !messenger.VerifySignature(body, h.appSecret, r.Header.Get(messenger.SignatureHeader)) {
		logx.Warn().Str("request_id", r.Header.Get(requestIDHeader)).Msg("webhook signature mismatch")
		http.Error(w, "firma inválida", http.StatusForbidden)
		return
	}
	env, err := messenger.ParseEnvelope(body)
	if err != nil {
		logx.Warn().Err(err).Msg("malformed webhook body")
		http.Error(w, "cuerpo inválido", http.StatusBadRequest)
		return
	}

	// Turns finish even if the platform hangs up mid-request.
	ctx := context.WithoutCancel(r.Context())
	for _, in := range env.Inbound() {
		out, err := h.turns.Handle(ctx, in)
		if err != nil {
			logx.Error().Err(err).Str("sender_id", in.SenderID).Msg("turn failed")
			continue
		}
		logx.Info().
			Str("sender_id", out.SenderID).
			Str("intent", out.Intent).
			Str("state", string(out.State)).
			Bool("dropped", out.Dropped).
			Msg("turn handled")
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "OK")
}
