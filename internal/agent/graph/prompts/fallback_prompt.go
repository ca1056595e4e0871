package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/frerescollection/shopbot/internal/agent/model"
)

//go:embed template/fallback_prompt.txt
var fallbackSystemPrompt string

// RenderFallback renders the system instruction and the customer's message for
// the completion model, and triggers prompt callbacks.
func RenderFallback(ctx context.Context, business model.BusinessConfig, catalogExcerpt, userText string) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(fallbackSystemPrompt),
	)
	vars := map[string]any{
		"BusinessName": business.Name,
		"Hours":        business.Hours,
		"Contact":      business.Contact,
		"Catalog":      catalogExcerpt,
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("fallback prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return nil, fmt.Errorf("fallback prompt render: empty result")
	}
	return []*schema.Message{msgs[0], schema.UserMessage(userText)}, nil
}
