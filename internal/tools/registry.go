// Package tools defines the callable tools a model may invoke during a
// tool-calling turn.
package tools

import (
	"context"
	"fmt"

	"github.com/studium-labs/studium/internal/llm"
)

// Generic keys some backends use for a single positional argument instead
// of the declared parameter name
var positionalArgKeys = []string{"__arg1", "input"}

// Tool couples a schema-described definition with its executor. Executors
// return a JSON-serializable payload; expected failures are reported inside
// the payload, not as Go errors, so the model can react to them.
type Tool struct {
	Definition llm.ToolDefinition

	// PrimaryParam names the parameter a positional argument maps to
	PrimaryParam string

	Execute func(ctx context.Context, args map[string]any) (any, error)
}

// Registry dispatches model-requested tool calls. It implements
// llm.ToolExecutor. A registry is assembled per turn so each tool sees the
// configuration snapshot the turn started with.
type Registry struct {
	order []string
	tools map[string]*Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool, keeping registration order for Definitions
func (r *Registry) Register(t *Tool) {
	name := t.Definition.Name
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Definitions lists the registered tool definitions in registration order
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition)
	}
	return defs
}

// Execute dispatches one call after normalizing provider argument quirks.
// Unregistered names return llm.ErrToolNotFound so the loop can synthesize
// an error tool-result instead of failing the turn.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", llm.ErrToolNotFound, name)
	}
	return tool.Execute(ctx, normalizeArgs(args, tool.PrimaryParam))
}

// normalizeArgs remaps a single positional argument under a generic key to
// the tool's primary parameter name
func normalizeArgs(args map[string]any, primaryParam string) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	if primaryParam == "" {
		return args
	}
	if _, ok := args[primaryParam]; ok {
		return args
	}

	for _, key := range positionalArgKeys {
		value, ok := args[key]
		if !ok {
			continue
		}
		normalized := make(map[string]any, len(args))
		for k, v := range args {
			if k == key {
				continue
			}
			normalized[k] = v
		}
		normalized[primaryParam] = value
		return normalized
	}

	return args
}

// stringArg reads a string argument, tolerating missing keys
func stringArg(args map[string]any, key string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// intArg reads an integer argument; JSON decoding delivers numbers as
// float64
func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
