package llm

import (
	"context"
	"errors"
)

// Provider names accepted by the registry
const (
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderGoogle     = "google"
	ProviderOpenRouter = "openrouter"
)

var (
	// ErrUnknownProvider is returned when resolving a provider name with no
	// registered factory
	ErrUnknownProvider = errors.New("unknown model provider")
	// ErrToolsNotSupported is returned by CompleteWithTools on providers
	// that only do plain completion
	ErrToolsNotSupported = errors.New("provider does not support tool calling")
	// ErrToolNotFound marks a model-requested tool name with no registered
	// executor
	ErrToolNotFound = errors.New("tool not found")
	// ErrEmptyCompletion is returned when a provider response carries no content
	ErrEmptyCompletion = errors.New("provider returned empty completion")
)

// Provider is the uniform contract over heterogeneous model backends. A
// Provider instance is bound to one model name at construction; the registry
// caches instances per (provider, model) pair.
//
// Implementations use the backend's own default sampling behavior and do not
// impose a temperature, except where the backend mandates a value.
type Provider interface {
	// Name returns the provider key, e.g. "openai"
	Name() string

	// Model returns the bound model name
	Model() string

	// Complete performs one non-streamed completion
	Complete(ctx context.Context, messages []Message) (string, error)

	// CompleteStream performs one completion, delivering text chunks to fn
	// as they arrive
	CompleteStream(ctx context.Context, messages []Message, fn StreamFunc) error

	// CompleteWithTools performs one non-streamed completion with the given
	// tools bound, so tool-call requests can be detected before any text is
	// surfaced
	CompleteWithTools(ctx context.Context, messages []Message, tools []ToolDefinition) (*Completion, error)

	// SupportsToolCalling reports whether this provider/model combination
	// accepts bound tools. When false the orchestration falls back to plain
	// streaming, never to an error.
	SupportsToolCalling() bool
}
