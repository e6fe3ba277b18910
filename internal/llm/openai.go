package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider talks to the OpenAI chat completions API. It also serves
// as the completion core for OpenAI-compatible backends such as OpenRouter.
type OpenAIProvider struct {
	name   string
	model  string
	client *openai.Client
}

// NewOpenAIProvider creates a provider bound to one OpenAI model
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	return &OpenAIProvider{
		name:   ProviderOpenAI,
		model:  model,
		client: openai.NewClient(apiKey),
	}
}

func (p *OpenAIProvider) Name() string  { return p.name }
func (p *OpenAIProvider) Model() string { return p.model }

// SupportsToolCalling is true for all OpenAI chat models used here
func (p *OpenAIProvider) SupportsToolCalling() bool { return true }

// Complete performs one non-streamed completion
func (p *OpenAIProvider) Complete(ctx context.Context, messages []Message) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: toOpenAIMessages(messages),
	})
	if err != nil {
		return "", fmt.Errorf("%s completion failed: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

// CompleteStream performs one completion, delivering token deltas to fn
func (p *OpenAIProvider) CompleteStream(ctx context.Context, messages []Message, fn StreamFunc) error {
	stream, err := p.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: toOpenAIMessages(messages),
		Stream:   true,
	})
	if err != nil {
		return fmt.Errorf("%s stream failed: %w", p.name, err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s stream receive failed: %w", p.name, err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := fn(delta); err != nil {
			return err
		}
	}
}

// CompleteWithTools performs one non-streamed completion with tools bound
func (p *OpenAIProvider) CompleteWithTools(ctx context.Context, messages []Message, tools []ToolDefinition) (*Completion, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: toOpenAIMessages(messages),
		Tools:    toOpenAITools(tools),
	})
	if err != nil {
		return nil, fmt.Errorf("%s tool completion failed: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyCompletion
	}

	choice := resp.Choices[0].Message
	calls, err := fromOpenAIToolCalls(choice.ToolCalls)
	if err != nil {
		return nil, fmt.Errorf("%s returned malformed tool call: %w", p.name, err)
	}

	return &Completion{Content: choice.Content, ToolCalls: calls}, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				args = []byte("{}")
			}
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func toOpenAITools(tools []ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func fromOpenAIToolCalls(calls []openai.ToolCall) ([]ToolCall, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	out := make([]ToolCall, 0, len(calls))
	for _, c := range calls {
		args := map[string]any{}
		if c.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(c.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("tool %s arguments: %w", c.Function.Name, err)
			}
		}
		out = append(out, ToolCall{
			ID:        c.ID,
			Name:      c.Function.Name,
			Arguments: args,
		})
	}
	return out, nil
}
