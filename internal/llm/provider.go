// Package llm wraps the external completion provider and turns its free-text
// output into validated JSON objects.
package llm

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat turn sent to the provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one completion call.
type Request struct {
	// Purpose labels the call in logs and metrics, e.g. "advice" or "chat_reply".
	Purpose  string
	Messages []Message
	// Deterministic asks the provider for its lowest temperature.
	Deterministic bool
}

// Completer is the external completion provider. Implementations return a
// *ProviderError for transport, status and quota failures.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// PromptBuilder produces the messages for a call. It may be invoked more than
// once per pipeline run and must return the same messages each time.
type PromptBuilder func() []Message

// Static returns a PromptBuilder for a fixed message list.
func Static(messages ...Message) PromptBuilder {
	return func() []Message {
		out := make([]Message, len(messages))
		copy(out, messages)
		return out
	}
}
