package messenger

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frerescollection/shopbot/internal/agent/model"
	errx "github.com/frerescollection/shopbot/internal/core/error"
)

type captured struct {
	mu     sync.Mutex
	paths  []string
	tokens []string
	bodies []map[string]any
}

func newGraphAPI(t *testing.T, status int) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))

		c.mu.Lock()
		c.paths = append(c.paths, r.URL.Path)
		c.tokens = append(c.tokens, r.URL.Query().Get("access_token"))
		c.bodies = append(c.bodies, body)
		c.mu.Unlock()

		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(model.MessengerConfig{PageAccessToken: "tok&en", GraphAPIURL: baseURL + "/"})
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresToken(t *testing.T) {
	_, err := NewClient(model.MessengerConfig{PageAccessToken: "  "})
	require.ErrorIs(t, err, errTokenRequired)
}

func TestSendText(t *testing.T) {
	srv, got := newGraphAPI(t, http.StatusOK)

	err := newTestClient(t, srv.URL).SendText(context.Background(), "psid-1", "¡Hola!")
	require.NoError(t, err)

	require.Len(t, got.bodies, 1)
	assert.Equal(t, "/me/messages", got.paths[0])
	assert.Equal(t, "tok&en", got.tokens[0])
	assert.Equal(t, map[string]any{
		"recipient":      map[string]any{"id": "psid-1"},
		"messaging_type": "RESPONSE",
		"message":        map[string]any{"text": "¡Hola!"},
	}, got.bodies[0])
}

func TestSendImage(t *testing.T) {
	srv, got := newGraphAPI(t, http.StatusOK)

	err := newTestClient(t, srv.URL).SendImage(context.Background(), "psid-1", "https://img.example/1.jpg")
	require.NoError(t, err)

	require.Len(t, got.bodies, 1)
	assert.Equal(t, map[string]any{
		"attachment": map[string]any{
			"type":    "image",
			"payload": map[string]any{"url": "https://img.example/1.jpg", "is_reusable": true},
		},
	}, got.bodies[0]["message"])
}

func TestSendFailureIsCollaboratorError(t *testing.T) {
	srv, _ := newGraphAPI(t, http.StatusBadRequest)

	err := newTestClient(t, srv.URL).SendText(context.Background(), "psid-1", "hola")
	require.Error(t, err)
	assert.Equal(t, errx.KindCollaborator, errx.KindOf(err))
	assert.Contains(t, err.Error(), "status 400")
}

func TestSendRequiresRecipient(t *testing.T) {
	srv, got := newGraphAPI(t, http.StatusOK)

	err := newTestClient(t, srv.URL).SendText(context.Background(), "", "hola")
	require.Error(t, err)
	assert.Equal(t, errx.KindUserInput, errx.KindOf(err))
	assert.Empty(t, got.bodies)
}
