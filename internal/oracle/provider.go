package oracle

import (
	"context"
)

// Message roles used in the provider conversation.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is one tool invocation requested by the model, either
// natively or recovered from an XML fallback block.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ChatMessage is one turn in the provider conversation. Tool results
// use RoleTool with ToolCallID set.
type ChatMessage struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// CompletionRequest is a single provider round-trip.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []ChatMessage
	Tools       []ToolSchema
	MaxTokens   int
	Temperature float64

	// OnDelta, when set, receives text deltas as the provider streams
	// the reply. The full text still arrives in Completion.Content.
	// Called from the provider's goroutine; must not block forever.
	OnDelta func(text string)
}

// ToolSchema is a tool description in the provider's format.
type ToolSchema struct {
	Name        string
	Description string
	InputSchema []byte
}

// Completion is the model's reply: text, any native tool calls, the
// stop reason and token usage.
type Completion struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason string
	TokensUsed int
}

// Provider abstracts the LLM backend. The production implementation
// wraps the Anthropic API; tests script one.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}
