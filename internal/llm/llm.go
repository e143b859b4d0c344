// Package llm abstracts the chat completion provider.
//
// The [Generator] interface is the seam the orchestrator talks to; [OpenAI]
// is the production implementation. Provider failures map onto two sentinel
// errors so callers can distinguish "quota exhausted" from "model broken".
package llm

import (
	"context"
	"errors"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Sentinel errors. Check with errors.Is().
var (
	// ErrUnavailable indicates the model could not produce a completion.
	ErrUnavailable = errors.New("model unavailable")

	// ErrQuotaExceeded indicates the provider rejected the request for
	// rate or quota reasons.
	ErrQuotaExceeded = errors.New("model quota exceeded")
)

// Message is one chat turn sent to the model.
type Message struct {
	Role    string
	Content string
}

// Usage is the token accounting of one completion.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Generator produces a completion for a conversation.
type Generator interface {
	Generate(ctx context.Context, model string, messages []Message) (string, Usage, error)
}
