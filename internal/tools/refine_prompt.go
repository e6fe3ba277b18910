package tools

import (
	"context"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/studium-labs/studium/internal/llm"
)

const refinePromptDescription = `Rewrite an ambiguous or underspecified user question into a clearer, more specific one.

Use this tool when the user's question is too vague to answer well. The refined question keeps the user's intent and language.`

// DefaultRefineTemplate is used when the configuration carries no custom
// refine instruction
const DefaultRefineTemplate = `Rewrite the following question so it is specific and unambiguous while preserving its intent and language. Reply with the rewritten question only.

Question:`

// RefineResult is the refine_prompt tool result. Success false means the
// auxiliary completion failed and the original text is passed through.
type RefineResult struct {
	Original string `json:"original"`
	Refined  string `json:"refined"`
	Success  bool   `json:"success"`
}

// NewRefinePromptTool builds the prompt-refinement tool. It issues one
// auxiliary non-streamed completion; refinement failure never blocks the
// turn, the original prompt is returned unchanged instead.
func NewRefinePromptTool(provider llm.Provider, template string) *Tool {
	if strings.TrimSpace(template) == "" {
		template = DefaultRefineTemplate
	}

	return &Tool{
		Definition: llm.ToolDefinition{
			Name:        llm.ToolRefinePrompt,
			Description: refinePromptDescription,
			Parameters: &jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"original_prompt": {
						Type:        jsonschema.String,
						Description: "The user question to refine",
					},
				},
				Required: []string{"original_prompt"},
			},
		},
		PrimaryParam: "original_prompt",
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			original := stringArg(args, "original_prompt")

			refined, err := provider.Complete(ctx, []llm.Message{
				llm.SystemMessage(template),
				llm.UserMessage(original),
			})
			if err != nil || strings.TrimSpace(refined) == "" {
				return &RefineResult{
					Original: original,
					Refined:  original,
					Success:  false,
				}, nil
			}

			return &RefineResult{
				Original: original,
				Refined:  strings.TrimSpace(refined),
				Success:  true,
			}, nil
		},
	}
}
