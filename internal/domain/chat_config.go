package domain

import (
	"fmt"
	"time"
)

// Defaults for the chat configuration singleton
const (
	DefaultTopK                = 5
	DefaultMaxTopK             = 10
	DefaultSimilarityThreshold = 0.7
	DefaultMaxIterations       = 10
	DefaultToolRelaxation      = 0.05
)

// ChatConfig is the singleton record controlling retrieval and tool-calling
// behavior. Read at the start of every turn and every direct search.
type ChatConfig struct {
	DefaultTopK         int     `json:"default_top_k"`
	MaxTopK             int     `json:"max_top_k"`
	SimilarityThreshold float64 `json:"similarity_threshold"`

	ToolCallingEnabled       bool `json:"tool_calling_enabled"`
	ToolCallingMaxIterations int  `json:"tool_calling_max_iterations"`

	// ToolSimilarityRelaxation loosens the similarity threshold for the
	// search tool relative to the direct search endpoint, favoring recall
	// while the model is deciding what to cite.
	ToolSimilarityRelaxation float64 `json:"tool_similarity_relaxation"`

	IncludeRAGInstruction bool   `json:"include_rag_instruction"`
	PromptRefine          string `json:"prompt_refine,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultChatConfig returns the configuration used until an administrator
// changes it
func DefaultChatConfig() *ChatConfig {
	return &ChatConfig{
		DefaultTopK:              DefaultTopK,
		MaxTopK:                  DefaultMaxTopK,
		SimilarityThreshold:      DefaultSimilarityThreshold,
		ToolCallingEnabled:       true,
		ToolCallingMaxIterations: DefaultMaxIterations,
		ToolSimilarityRelaxation: DefaultToolRelaxation,
		IncludeRAGInstruction:    true,
	}
}

// ToolThreshold is the minimum similarity applied inside the search tool.
// Never below zero so relaxation cannot disable filtering outright.
func (c *ChatConfig) ToolThreshold() float64 {
	t := c.SimilarityThreshold - c.ToolSimilarityRelaxation
	if t < 0 {
		t = 0
	}
	return t
}

// ClampTopK bounds a requested result count to [1, MaxTopK], substituting
// the default when the request carries none.
func (c *ChatConfig) ClampTopK(requested int) int {
	if requested <= 0 {
		requested = c.DefaultTopK
	}
	if requested < 1 {
		requested = 1
	}
	if requested > c.MaxTopK {
		requested = c.MaxTopK
	}
	return requested
}

// ValidateChatConfig validates a ChatConfig instance
func ValidateChatConfig(c *ChatConfig) error {
	if c == nil {
		return fmt.Errorf("chat config cannot be nil")
	}

	if c.DefaultTopK < 1 || c.DefaultTopK > 100 {
		return fmt.Errorf("default_top_k must be between 1 and 100")
	}

	if c.MaxTopK < 1 || c.MaxTopK > 100 {
		return fmt.Errorf("max_top_k must be between 1 and 100")
	}

	if c.DefaultTopK > c.MaxTopK {
		return fmt.Errorf("default_top_k must not exceed max_top_k")
	}

	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be between 0 and 1")
	}

	if c.ToolSimilarityRelaxation < 0 || c.ToolSimilarityRelaxation > 1 {
		return fmt.Errorf("tool_similarity_relaxation must be between 0 and 1")
	}

	if c.ToolCallingMaxIterations < 1 || c.ToolCallingMaxIterations > 100 {
		return fmt.Errorf("tool_calling_max_iterations must be between 1 and 100")
	}

	return nil
}
