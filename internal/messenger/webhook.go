package messenger

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/frerescollection/shopbot/internal/agent/model"
)

const (
	// SignatureHeader carries the HMAC-SHA256 of the raw body, keyed by the app secret.
	SignatureHeader = "X-Hub-Signature-256"
	signaturePrefix = "sha256="
	pageObject      = "page"
)

// Envelope is the webhook POST body.
type Envelope struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []MessagingEvent `json:"messaging"`
}

type MessagingEvent struct {
	Sender    Party    `json:"sender"`
	Recipient Party    `json:"recipient"`
	Timestamp int64    `json:"timestamp"`
	Message   *Message `json:"message,omitempty"`
}

type Party struct {
	ID string `json:"id"`
}

type Message struct {
	MID    string `json:"mid"`
	Text   string `json:"text"`
	IsEcho bool   `json:"is_echo"`
}

// ParseEnvelope decodes a webhook body.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode webhook envelope: %w", err)
	}
	return &env, nil
}

// Inbound flattens the envelope into customer messages, in delivery order.
// Echoes of the page's own messages and non-message events are skipped.
func (e *Envelope) Inbound() []model.Inbound {
	if e == nil || (e.Object != "" && e.Object != pageObject) {
		return nil
	}
	var out []model.Inbound
	for _, entry := range e.Entry {
		for _, ev := range entry.Messaging {
			if ev.Message == nil || ev.Message.IsEcho || ev.Sender.ID == "" {
				continue
			}
			out = append(out, model.Inbound{SenderID: ev.Sender.ID, Text: ev.Message.Text})
		}
	}
	return out
}

// VerifySignature checks the X-Hub-Signature-256 header against body.
// An empty secret disables the check.
func VerifySignature(body []byte, secret, header string) bool {
	if secret == "" {
		return true
	}
	sig, ok := strings.CutPrefix(strings.TrimSpace(header), signaturePrefix)
	if !ok || sig == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(body, secret)), []byte(signaturePrefix+strings.ToLower(sig)))
}

// Sign returns the header value for body, "sha256=<hex>".
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}
