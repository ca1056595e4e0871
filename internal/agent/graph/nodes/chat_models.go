package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/frerescollection/shopbot/internal/agent/dialog"
	"github.com/frerescollection/shopbot/internal/agent/model"
	errx "github.com/frerescollection/shopbot/internal/core/error"
	"github.com/frerescollection/shopbot/internal/metrics"
	logx "github.com/frerescollection/shopbot/pkg/logger"
)

// NewGeminiChatModel creates the completion model used for unmatched messages.
func NewGeminiChatModel(ctx context.Context, config model.OracleConfig) (*gemini.ChatModel, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	maxTokens := config.MaxTokens
	temperature := config.Temperature
	chatModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.Model,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating fallback model")
		return nil, fmt.Errorf("error creating fallback model: %w", err)
	}
	return chatModel, nil
}

// FallbackModel bounds every completion call with a timeout and turns failures
// into the generic apology, so a broken oracle never fails the turn.
type FallbackModel struct {
	inner   einomodel.BaseChatModel
	name    string
	timeout time.Duration
	metrics *metrics.BotMetrics
}

func NewFallbackModel(inner einomodel.BaseChatModel, name string, timeout time.Duration, m *metrics.BotMetrics) *FallbackModel {
	return &FallbackModel{inner: inner, name: name, timeout: timeout, metrics: m}
}

// Name is the configured model name, used for cost accounting.
func (f *FallbackModel) Name() string { return f.name }

func (f *FallbackModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	out, err := f.inner.Generate(ctx, input, opts...)
	if err != nil {
		f.metrics.IncOracle("error")
		logx.Error().Err(errx.WrapOracle(err)).Str("model", f.name).Msg("fallback completion failed")
		return schema.AssistantMessage(dialog.MsgApology, nil), nil
	}
	f.metrics.IncOracle("ok")
	return out, nil
}

func (f *FallbackModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// GetType names the component in callbacks.
func (f *FallbackModel) GetType() string { return "Fallback" }
