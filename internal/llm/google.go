package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GoogleProvider talks to the Gemini API. Like the Anthropic provider it
// declares no tool-calling support and serves the plain streaming path.
type GoogleProvider struct {
	model  string
	client *genai.Client
}

// NewGoogleProvider creates a provider bound to one Gemini model
func NewGoogleProvider(ctx context.Context, apiKey, model string) (*GoogleProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google client init failed: %w", err)
	}
	return &GoogleProvider{model: model, client: client}, nil
}

func (p *GoogleProvider) Name() string  { return ProviderGoogle }
func (p *GoogleProvider) Model() string { return p.model }

func (p *GoogleProvider) SupportsToolCalling() bool { return false }

// Complete performs one non-streamed completion
func (p *GoogleProvider) Complete(ctx context.Context, messages []Message) (string, error) {
	contents, cfg := p.buildRequest(messages)

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("google completion failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// CompleteStream performs one completion, delivering text chunks to fn
func (p *GoogleProvider) CompleteStream(ctx context.Context, messages []Message, fn StreamFunc) error {
	contents, cfg := p.buildRequest(messages)

	for resp, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, cfg) {
		if err != nil {
			return fmt.Errorf("google stream failed: %w", err)
		}
		chunk := resp.Text()
		if chunk == "" {
			continue
		}
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return nil
}

// CompleteWithTools is not available on this provider
func (p *GoogleProvider) CompleteWithTools(ctx context.Context, messages []Message, tools []ToolDefinition) (*Completion, error) {
	return nil, ErrToolsNotSupported
}

// buildRequest maps the neutral message list to Gemini contents: system
// messages become the system instruction, user stays user, assistant maps
// to the model role.
func (p *GoogleProvider) buildRequest(messages []Message) ([]*genai.Content, *genai.GenerateContentConfig) {
	var cfg *genai.GenerateContentConfig
	contents := make([]*genai.Content, 0, len(messages))

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			if cfg == nil {
				cfg = &genai.GenerateContentConfig{}
			}
			if cfg.SystemInstruction == nil {
				cfg.SystemInstruction = genai.NewContentFromText(m.Content, genai.RoleUser)
			} else {
				cfg.SystemInstruction.Parts = append(cfg.SystemInstruction.Parts,
					genai.NewPartFromText(m.Content))
			}
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	return contents, cfg
}
