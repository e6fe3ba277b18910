package tools

import (
	"context"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/studium-labs/studium/internal/domain"
	"github.com/studium-labs/studium/internal/llm"
	"github.com/studium-labs/studium/internal/rag"
)

const semanticSearchDescription = `Search for relevant documents using semantic similarity.

Use this tool to find information from uploaded documents that's relevant to the user's question.
The tool will return the most relevant document chunks along with their sources.`

// SearchHit is one chunk formatted for the model
type SearchHit struct {
	Filename   string  `json:"filename"`
	Page       *int    `json:"page,omitempty"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// SearchPayload is the semantic_search tool result. Failures are carried in
// Error with empty results, so a failed search never aborts the turn.
type SearchPayload struct {
	Query   string          `json:"query"`
	Results []SearchHit     `json:"results"`
	Sources []domain.Source `json:"sources"`
	Count   int             `json:"count"`
	Error   string          `json:"error,omitempty"`
}

// NewSemanticSearchTool builds the retrieval tool for one turn. The
// similarity threshold is the configured one relaxed by the tool relaxation
// amount, trading precision for recall while the model gathers context.
func NewSemanticSearchTool(retriever *rag.Retriever, cfg *domain.ChatConfig) *Tool {
	return &Tool{
		Definition: llm.ToolDefinition{
			Name:        llm.ToolSemanticSearch,
			Description: semanticSearchDescription,
			Parameters: &jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"query": {
						Type:        jsonschema.String,
						Description: "The search query or question to find relevant documents for",
					},
					"top_k": {
						Type:        jsonschema.Integer,
						Description: "Number of results to return",
					},
				},
				Required: []string{"query"},
			},
		},
		PrimaryParam: "query",
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			query := stringArg(args, "query")

			results, err := retriever.Search(ctx, query, rag.SearchOptions{
				TopK:          intArg(args, "top_k"),
				MinSimilarity: cfg.ToolThreshold(),
				DefaultTopK:   cfg.DefaultTopK,
				MaxTopK:       cfg.MaxTopK,
			})
			if err != nil {
				return &SearchPayload{
					Query:   query,
					Results: []SearchHit{},
					Sources: []domain.Source{},
					Count:   0,
					Error:   err.Error(),
				}, nil
			}

			hits := make([]SearchHit, 0, len(results))
			for _, r := range results {
				hits = append(hits, SearchHit{
					Filename:   r.Filename,
					Page:       r.Page,
					Content:    r.Content,
					Similarity: r.Similarity,
				})
			}

			return &SearchPayload{
				Query:   query,
				Results: hits,
				Sources: rag.ExtractSources(results),
				Count:   len(results),
			}, nil
		},
	}
}
