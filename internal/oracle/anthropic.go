package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	maxRetries     = 3
	initialBackoff = 1 * time.Second
)

// ErrAPIKeyRequired is returned when no Anthropic API key is
// configured.
var ErrAPIKeyRequired = errors.New("API key required")

// AnthropicProvider implements Provider over the Anthropic API with
// exponential-backoff retries on 429s and 5xx.
type AnthropicProvider struct {
	client         anthropic.Client
	maxRetries     int
	initialBackoff time.Duration
}

// NewAnthropicProvider builds the production provider.
func NewAnthropicProvider(apiKey string) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY or anthropic-api-key in config", ErrAPIKeyRequired)
	}
	return &AnthropicProvider{
		client:         anthropic.NewClient(option.WithAPIKey(apiKey)),
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
	}, nil
}

// Complete performs one model round-trip over the streaming API,
// forwarding text deltas to req.OnDelta as they arrive.
func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := p.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		message, streamed, err := p.streamOnce(ctx, params, req.OnDelta)
		if err == nil {
			return parseMessage(message), nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isRetryable(err) {
			return nil, fmt.Errorf("non-retryable error: %w", err)
		}
		// Retrying after deltas reached the caller would replay text
		// the consumer has already seen.
		if streamed {
			return nil, fmt.Errorf("stream failed mid-reply: %w", err)
		}
	}
	return nil, fmt.Errorf("failed after %d retries: %w", p.maxRetries+1, lastErr)
}

// streamOnce runs one streaming round-trip, accumulating events into a
// complete message. streamed reports whether any text delta reached
// onDelta before a failure.
func (p *AnthropicProvider) streamOnce(ctx context.Context, params anthropic.MessageNewParams, onDelta func(string)) (*anthropic.Message, bool, error) {
	stream := p.client.Messages.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	var message anthropic.Message
	streamed := false
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return nil, streamed, fmt.Errorf("failed to accumulate stream event: %w", err)
		}
		if onDelta == nil {
			continue
		}
		if variant, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if delta, ok := variant.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				onDelta(delta.Text)
				streamed = true
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, streamed, err
	}
	return &message, streamed, nil
}

func buildParams(req CompletionRequest) (anthropic.MessageNewParams, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	for _, schema := range req.Tools {
		var input struct {
			Properties any      `json:"properties"`
			Required   []string `json:"required"`
		}
		if err := json.Unmarshal(schema.InputSchema, &input); err != nil {
			return params, fmt.Errorf("invalid input schema for tool %s: %w", schema.Name, err)
		}
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        schema.Name,
				Description: anthropic.String(schema.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: input.Properties,
					Required:   input.Required,
				},
			},
		})
	}

	for _, m := range req.Messages {
		param, err := buildMessage(m)
		if err != nil {
			return params, err
		}
		params.Messages = append(params.Messages, param)
	}
	return params, nil
}

func buildMessage(m ChatMessage) (anthropic.MessageParam, error) {
	switch m.Role {
	case RoleUser:
		return anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)), nil
	case RoleTool:
		return anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)), nil
	case RoleAssistant:
		var blocks []anthropic.ContentBlockParamUnion
		if m.Content != "" {
			blocks = append(blocks, anthropic.NewTextBlock(m.Content))
		}
		for _, call := range m.ToolCalls {
			blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, call.Arguments, call.Name))
		}
		if len(blocks) == 0 {
			blocks = append(blocks, anthropic.NewTextBlock(""))
		}
		return anthropic.NewAssistantMessage(blocks...), nil
	}
	return anthropic.MessageParam{}, fmt.Errorf("unknown message role %q", m.Role)
}

func parseMessage(message *anthropic.Message) *Completion {
	out := &Completion{
		StopReason: "stop",
		TokensUsed: int(message.Usage.InputTokens + message.Usage.OutputTokens),
	}
	if message.StopReason == anthropic.StopReasonToolUse {
		out.StopReason = "tool_use"
	}
	for _, block := range message.Content {
		switch block.Type {
		case "text":
			out.Content += block.AsText().Text
		case "tool_use":
			use := block.AsToolUse()
			args := make(map[string]any)
			_ = json.Unmarshal(use.Input, &args)
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        use.ID,
				Name:      use.Name,
				Arguments: args,
			})
		}
	}
	return out
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
