package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frerescollection/shopbot/internal/agent/model"
	"github.com/frerescollection/shopbot/internal/messenger"
)

type recordingTurns struct {
	mu   sync.Mutex
	seen []model.Inbound
	err  error
}

func (r *recordingTurns) Handle(_ context.Context, in model.Inbound) (*model.TurnResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, in)
	if r.err != nil {
		return nil, r.err
	}
	return &model.TurnResult{SenderID: in.SenderID, Intent: "greeting", State: model.StateStart}, nil
}

const envelope = `{"object":"page","entry":[{"id":"p","messaging":[
 {"sender":{"id":"u1"},"recipient":{"id":"p"},"message":{"mid":"m1","text":"hola"}},
 {"sender":{"id":"p"},"recipient":{"id":"u1"},"message":{"mid":"m2","text":"eco","is_echo":true}},
 {"sender":{"id":"u1"},"recipient":{"id":"p"},"message":{"mid":"m3","text":"catalogo"}}]}]}`

func newRouter(turns TurnHandler, secret string) (http.Handler, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "bot_turns_total", Help: "x"}))
	return NewRouter(Dependencies{
		Turns:     turns,
		Messenger: model.MessengerConfig{VerifyToken: "freres_verificacion", AppSecret: secret},
		Gatherer:  reg,
	}), reg
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestVerifyEchoesChallenge(t *testing.T) {
	h, _ := newRouter(&recordingTurns{}, "")

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=freres_verificacion&hub.challenge=12345", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "12345", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/webhook?hub.verify_token=nope&hub.challenge=12345", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReceiveRunsTurnsInOrderSkippingEchoes(t *testing.T) {
	turns := &recordingTurns{}
	h, _ := newRouter(turns, "")

	rec := serve(h, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(envelope)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.Equal(t, []model.Inbound{{SenderID: "u1", Text: "hola"}, {SenderID: "u1", Text: "catalogo"}}, turns.seen)
}

func TestReceiveAcknowledgesFailedTurns(t *testing.T) {
	turns := &recordingTurns{err: errors.New("session store down")}
	h, _ := newRouter(turns, "")

	rec := serve(h, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(envelope)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, turns.seen, 2)
}

func TestReceiveChecksSignature(t *testing.T) {
	turns := &recordingTurns{}
	h, _ := newRouter(turns, "s3cret")

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(envelope))
	req.Header.Set(messenger.SignatureHeader, "sha256=deadbeef")
	rec := serve(h, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, turns.seen)

	req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(envelope))
	req.Header.Set(messenger.SignatureHeader, messenger.Sign([]byte(envelope), "s3cret"))
	rec = serve(h, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, turns.seen, 2)
}

func TestReceiveRejectsMalformedBody(t *testing.T) {
	turns := &recordingTurns{}
	h, _ := newRouter(turns, "")

	rec := serve(h, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"entry":[`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, turns.seen)
}

func TestHealthzAndMetrics(t *testing.T) {
	h, _ := newRouter(&recordingTurns{}, "")

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bot_turns_total")
}

func TestRecovererReturns500(t *testing.T) {
	h := Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
