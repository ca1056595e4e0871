// Package messenger talks to the Messenger Platform: outbound Send API calls
// and the inbound webhook envelope.
package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/frerescollection/shopbot/internal/agent/model"
	errx "github.com/frerescollection/shopbot/internal/core/error"
	logx "github.com/frerescollection/shopbot/pkg/logger"
)

const (
	defaultGraphAPIURL    = "https://graph.facebook.com/v18.0"
	responseBodyReadLimit = 1024
	defaultTimeout        = 10 * time.Second
	messagingTypeResponse = "RESPONSE"
	attachmentTypeImage   = "image"
)

var errTokenRequired = errors.New("page access token is required")

// Client sends text and image messages through the Graph API Send endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

var _ model.Messenger = (*Client)(nil)

type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient builds a Send API client from the Messenger configuration.
func NewClient(config model.MessengerConfig, opts ...Option) (*Client, error) {
	token := strings.TrimSpace(config.PageAccessToken)
	if token == "" {
		return nil, errTokenRequired
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	baseURL := strings.TrimRight(strings.TrimSpace(config.GraphAPIURL), "/")
	if baseURL == "" {
		baseURL = defaultGraphAPIURL
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		token:      token,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type sendRequest struct {
	Recipient     recipient   `json:"recipient"`
	MessagingType string      `json:"messaging_type"`
	Message       sendMessage `json:"message"`
}

type recipient struct {
	ID string `json:"id"`
}

type sendMessage struct {
	Text       string      `json:"text,omitempty"`
	Attachment *attachment `json:"attachment,omitempty"`
}

type attachment struct {
	Type    string            `json:"type"`
	Payload attachmentPayload `json:"payload"`
}

type attachmentPayload struct {
	URL        string `json:"url"`
	IsReusable bool   `json:"is_reusable"`
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, recipientID, text string) error {
	return c.send(ctx, sendRequest{
		Recipient:     recipient{ID: recipientID},
		MessagingType: messagingTypeResponse,
		Message:       sendMessage{Text: text},
	})
}

// SendImage sends an image attachment by URL.
func (c *Client) SendImage(ctx context.Context, recipientID, imageURL string) error {
	return c.send(ctx, sendRequest{
		Recipient:     recipient{ID: recipientID},
		MessagingType: messagingTypeResponse,
		Message: sendMessage{Attachment: &attachment{
			Type:    attachmentTypeImage,
			Payload: attachmentPayload{URL: imageURL, IsReusable: true},
		}},
	})
}

func (c *Client) send(ctx context.Context, req sendRequest) error {
	if c == nil {
		return errx.WrapMessenger(errors.New("messenger client not configured"))
	}
	if strings.TrimSpace(req.Recipient.ID) == "" {
		return errx.NewKind(errx.KindUserInput, errors.New("recipient id is required"), "invalid recipient")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return errx.WrapMessenger(fmt.Errorf("marshal send request: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return errx.WrapMessenger(fmt.Errorf("build send request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return errx.WrapMessenger(fmt.Errorf("execute send request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return errx.WrapMessenger(fmt.Errorf("send api status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	logx.Debug().Str("recipient_id", req.Recipient.ID).Bool("image", req.Message.Attachment != nil).Msg("message sent")
	return nil
}

func (c *Client) endpoint() string {
	return fmt.Sprintf("%s/me/messages?access_token=%s", c.baseURL, url.QueryEscape(c.token))
}
