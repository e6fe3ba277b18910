package llm

import (
	"context"
	"fmt"
	"strings"

	anthropic "github.com/liushuangls/go-anthropic/v2"
)

// anthropicMaxTokens is required by the Anthropic messages API; other
// providers are left on their backend defaults.
const anthropicMaxTokens = 4096

// AnthropicProvider talks to the Anthropic messages API. It declares no
// tool-calling support, so turns on this provider always run the plain
// streaming path.
type AnthropicProvider struct {
	model  string
	client *anthropic.Client
}

// NewAnthropicProvider creates a provider bound to one Anthropic model
func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	return &AnthropicProvider{
		model:  model,
		client: anthropic.NewClient(apiKey),
	}
}

func (p *AnthropicProvider) Name() string  { return ProviderAnthropic }
func (p *AnthropicProvider) Model() string { return p.model }

func (p *AnthropicProvider) SupportsToolCalling() bool { return false }

// Complete performs one non-streamed completion
func (p *AnthropicProvider) Complete(ctx context.Context, messages []Message) (string, error) {
	resp, err := p.client.CreateMessages(ctx, p.buildRequest(messages))
	if err != nil {
		return "", fmt.Errorf("anthropic completion failed: %w", err)
	}
	text := resp.GetFirstContentText()
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// CompleteStream performs one completion, delivering token deltas to fn
func (p *AnthropicProvider) CompleteStream(ctx context.Context, messages []Message, fn StreamFunc) error {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var fnErr error
	_, err := p.client.CreateMessagesStream(streamCtx, anthropic.MessagesStreamRequest{
		MessagesRequest: p.buildRequest(messages),
		OnContentBlockDelta: func(data anthropic.MessagesEventContentBlockDeltaData) {
			if fnErr != nil || data.Delta.Text == nil || *data.Delta.Text == "" {
				return
			}
			if err := fn(*data.Delta.Text); err != nil {
				fnErr = err
				cancel()
			}
		},
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("anthropic stream failed: %w", err)
	}
	return nil
}

// CompleteWithTools is not available on this provider
func (p *AnthropicProvider) CompleteWithTools(ctx context.Context, messages []Message, tools []ToolDefinition) (*Completion, error) {
	return nil, ErrToolsNotSupported
}

// buildRequest maps the neutral message list to the Anthropic shape: system
// content moves to the dedicated field, the rest alternates user/assistant.
func (p *AnthropicProvider) buildRequest(messages []Message) anthropic.MessagesRequest {
	var system []string
	converted := make([]anthropic.Message, 0, len(messages))

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			converted = append(converted, anthropic.NewAssistantTextMessage(m.Content))
		case RoleUser:
			converted = append(converted, anthropic.NewUserTextMessage(m.Content))
		}
	}

	return anthropic.MessagesRequest{
		Model:     anthropic.Model(p.model),
		System:    strings.Join(system, "\n\n"),
		Messages:  converted,
		MaxTokens: anthropicMaxTokens,
	}
}
