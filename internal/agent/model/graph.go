package model

import "time"

// AppState stores per-invocation state for the turn graph.
// Concurrency model:
//   - This struct is registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen only inside Eino state handlers:
//     WithStatePreHandler, WithStatePostHandler, or compose.ProcessState.
//   - The session pointer is owned by the turn; the sender lock held by the
//     runner keeps other turns for the same sender out until Persist returns.
type AppState struct {
	SenderID  string
	StartedAt time.Time
	Throttled bool
	Session   *Session // set by Hydrate, saved by Persist
	Message   string   // sanitized inbound text, for the fallback prompt
	Intent    string
	Images    []string // product images to send before the reply text

	// Accumulated total LLM cost (USD) across model invocations for this turn
	TotalCostUSD float64
}

// Inbound is one text message from the messaging platform.
type Inbound struct {
	SenderID string `json:"sender_id"`
	Text     string `json:"text"`
}

// TurnInput is the inbound message after sanitizing and normalization.
type TurnInput struct {
	SenderID string
	// Clean keeps the sender's casing; used for free-text fields like names and addresses.
	Clean string
	// Text is the normalized form every intent is matched against.
	Text string
}

// Reply is what the bot sends back in one turn.
type Reply struct {
	Text   string   `json:"text"`
	Images []string `json:"images,omitempty"`
}

// TurnResult is the output of one graph invocation.
type TurnResult struct {
	SenderID string `json:"sender_id"`
	Reply    Reply  `json:"reply"`
	Intent   string `json:"intent"`
	State    State  `json:"state"`
	// Dropped is set when admission control rejected the message.
	Dropped bool `json:"dropped,omitempty"`
}
