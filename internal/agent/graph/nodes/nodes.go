package nodes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/frerescollection/shopbot/internal/agent/command"
	"github.com/frerescollection/shopbot/internal/agent/dialog"
	"github.com/frerescollection/shopbot/internal/agent/graph/conversations"
	"github.com/frerescollection/shopbot/internal/agent/graph/prompts"
	"github.com/frerescollection/shopbot/internal/agent/model"
	"github.com/frerescollection/shopbot/internal/agent/textnorm"
	"github.com/frerescollection/shopbot/internal/metrics"
	"github.com/frerescollection/shopbot/internal/ratelimit"
	"github.com/frerescollection/shopbot/internal/shop/analytics"
	"github.com/frerescollection/shopbot/internal/shop/catalog"
	logx "github.com/frerescollection/shopbot/pkg/logger"
)

// NewAdmissionPreHandler resets the per-turn state.
func NewAdmissionPreHandler(now func() time.Time) func(context.Context, model.Inbound, *model.AppState) (model.Inbound, error) {
	return func(ctx context.Context, in model.Inbound, s *model.AppState) (model.Inbound, error) {
		*s = model.AppState{SenderID: in.SenderID, StartedAt: now()}
		return in, nil
	}
}

// NewAdmissionNode applies the per-sender rate limit and cleans the text.
// A limiter failure admits the message.
func NewAdmissionNode(limiter ratelimit.Limiter, m *metrics.BotMetrics) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.Inbound) (model.TurnInput, error) {
		clean := textnorm.Sanitize(in.Text)
		turn := model.TurnInput{SenderID: in.SenderID, Clean: clean, Text: textnorm.Normalize(clean)}

		if limiter == nil {
			return turn, nil
		}
		allowed, err := limiter.Allow(ctx, in.SenderID)
		if err != nil {
			logx.Warn().Err(err).Str("sender_id", in.SenderID).Msg("rate limiter unavailable; admitting message")
			return turn, nil
		}
		if allowed {
			return turn, nil
		}

		m.IncRateLimited()
		logx.Info().Str("sender_id", in.SenderID).Msg("message dropped by rate limiter")
		err = compose.ProcessState(ctx, func(_ context.Context, s *model.AppState) error {
			s.Throttled = true
			s.Intent = IntentThrottled
			return nil
		})
		return turn, err
	})
}

// NewAdmissionCondition routes throttled messages straight to delivery of the notice.
func NewAdmissionCondition() func(context.Context, model.TurnInput) (string, error) {
	return func(ctx context.Context, _ model.TurnInput) (string, error) {
		var throttled bool
		if err := readState(ctx, func(s *model.AppState) { throttled = s.Throttled }); err != nil {
			return "", err
		}
		if throttled {
			return NodeThrottled, nil
		}
		return NodeHydrate, nil
	}
}

// NewThrottledNode answers a dropped message with the throttling notice.
func NewThrottledNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ model.TurnInput) (model.Reply, error) {
		return model.Reply{Text: dialog.MsgThrottled}, nil
	})
}

// NewHydrateNode loads the sender's session into state. The caller holds the sender lock.
func NewHydrateNode(sessions *conversations.SessionManager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.TurnInput) (model.TurnInput, error) {
		session, err := sessions.Load(ctx, in.SenderID)
		if err != nil {
			return in, fmt.Errorf("hydrate session: %w", err)
		}
		err = compose.ProcessState(ctx, func(_ context.Context, s *model.AppState) error {
			s.Session = session
			return nil
		})
		return in, err
	})
}

// NewDialogNode runs the state machine against the hydrated session.
func NewDialogNode(engine *dialog.Engine, events *analytics.Recorder) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.TurnInput) (dialog.Outcome, error) {
		var session *model.Session
		if err := readState(ctx, func(s *model.AppState) {
			session = s.Session
			s.Message = in.Clean
		}); err != nil {
			return dialog.Outcome{}, err
		}
		if session == nil {
			return dialog.Outcome{}, fmt.Errorf("missing session in state")
		}

		events.Message(ctx, in.SenderID, analytics.DirectionIn, in.Text)
		return engine.Handle(ctx, session, command.Parse(in.Clean, in.Text)), nil
	})
}

// NewDialogPostHandler records the matched intent and images.
func NewDialogPostHandler() func(context.Context, dialog.Outcome, *model.AppState) (dialog.Outcome, error) {
	return func(ctx context.Context, out dialog.Outcome, s *model.AppState) (dialog.Outcome, error) {
		s.Intent = out.Intent
		s.Images = out.Images
		logx.Debug().
			Str("sender_id", s.SenderID).
			Str("intent", out.Intent).
			Str("state", string(s.Session.State)).
			Msg("dialog turn handled")
		return out, nil
	}
}

// NewDialogCondition sends unmatched messages to the completion model.
func NewDialogCondition() func(context.Context, dialog.Outcome) (string, error) {
	return func(ctx context.Context, out dialog.Outcome) (string, error) {
		if out.Matched {
			return NodeReply, nil
		}
		return NodeFallbackPrompt, nil
	}
}

// NewReplyNode turns the state machine outcome into the outbound reply.
func NewReplyNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, out dialog.Outcome) (model.Reply, error) {
		return model.Reply{Text: out.Reply, Images: out.Images}, nil
	})
}

// NewFallbackPromptNode builds the completion request: system instruction with
// a catalog excerpt, then the customer's message.
func NewFallbackPromptNode(cache *catalog.Cache, business model.BusinessConfig, excerpt int) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ dialog.Outcome) ([]*schema.Message, error) {
		var sender, message string
		if err := readState(ctx, func(s *model.AppState) {
			sender = s.SenderID
			message = s.Message
		}); err != nil {
			return nil, err
		}

		listing := ""
		if cache != nil {
			snap, err := cache.Snapshot(ctx)
			if err != nil {
				logx.Warn().Err(err).Str("sender_id", sender).Msg("fallback prompt without catalog excerpt")
			} else {
				listing = catalogExcerpt(snap, excerpt)
			}
		}

		msgs, err := prompts.RenderFallback(ctx, business, listing, message)
		if err != nil {
			return nil, fmt.Errorf("render fallback prompt: %w", err)
		}
		return msgs, nil
	})
}

// NewOraclePostHandler computes and logs usage cost for the completion model.
func NewOraclePostHandler(modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		state.Intent = IntentOracle
		if out == nil || out.ResponseMeta == nil {
			return out, nil
		}
		usage := model.UsageFor(modelName, out.ResponseMeta.Usage)
		if usage == nil {
			return out, nil
		}
		if out.Extra == nil {
			out.Extra = map[string]any{}
		}
		out.Extra["usage_cost"] = usage
		state.TotalCostUSD += usage.TotalCostUSD
		logx.Debug().
			Str("sender_id", state.SenderID).
			Str("node", NodeOracle).
			Str("model", modelName).
			Int("prompt_tokens", usage.PromptTokens).
			Int("completion_tokens", usage.CompletionTokens).
			Float64("total_cost_usd", usage.TotalCostUSD).
			Msg("LLM usage")
		return out, nil
	}
}

// NewOracleReplyNode uses the completion text, or the help text when it is empty.
func NewOracleReplyNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, msg *schema.Message) (model.Reply, error) {
		if msg == nil || strings.TrimSpace(msg.Content) == "" {
			return model.Reply{Text: dialog.HelpText}, nil
		}
		return model.Reply{Text: strings.TrimSpace(msg.Content)}, nil
	})
}

// NewDeliverNode sends images first and then the text. Send failures are logged
// and never fail the turn.
func NewDeliverNode(messenger model.Messenger, events *analytics.Recorder) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, reply model.Reply) (model.Reply, error) {
		var sender string
		if err := readState(ctx, func(s *model.AppState) { sender = s.SenderID }); err != nil {
			return reply, err
		}
		if reply.Text == "" {
			return reply, nil
		}

		if messenger != nil {
			for _, url := range reply.Images {
				if err := messenger.SendImage(ctx, sender, url); err != nil {
					logx.Warn().Err(err).Str("sender_id", sender).Str("image", url).Msg("image delivery failed")
				}
			}
			if err := messenger.SendText(ctx, sender, reply.Text); err != nil {
				logx.Error().Err(err).Str("sender_id", sender).Msg("reply delivery failed")
			}
		}
		events.Message(ctx, sender, analytics.DirectionOut, reply.Text)
		return reply, nil
	})
}

// NewPersistNode saves the session and assembles the turn result. A failed save
// keeps the in-memory copy and is only logged.
func NewPersistNode(sessions *conversations.SessionManager, m *metrics.BotMetrics, now func() time.Time) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, reply model.Reply) (*model.TurnResult, error) {
		var state model.AppState
		if err := readState(ctx, func(s *model.AppState) { state = *s }); err != nil {
			return nil, err
		}

		result := &model.TurnResult{
			SenderID: state.SenderID,
			Reply:    reply,
			Intent:   state.Intent,
			Dropped:  state.Throttled,
		}
		if state.Session != nil {
			if err := sessions.Save(ctx, state.Session); err != nil {
				logx.Error().Err(err).Str("sender_id", state.SenderID).Msg("session persist failed")
			}
			result.State = state.Session.State
		}

		m.ObserveTurn(state.Intent, now().Sub(state.StartedAt))
		return result, nil
	})
}
