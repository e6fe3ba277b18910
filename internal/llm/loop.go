package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/studium-labs/studium/internal/telemetry"
)

// DefaultMaxIterations caps tool-calling rounds per turn unless configured
const DefaultMaxIterations = 10

// MaxIterationsNotice is streamed as the final chunk when a turn hits the
// iteration cap without a plain-text answer
const MaxIterationsNotice = "[Tool calling max iterations reached]"

// Tool names receiving differentiated transport events
const (
	ToolSemanticSearch = "semantic_search"
	ToolRefinePrompt   = "refine_prompt"
)

// EventType tags loop events
type EventType string

const (
	EventToolInvoked   EventType = "tool_invoked"
	EventToolCompleted EventType = "tool_completed"
	EventChunk         EventType = "chunk"
)

// Event is one occurrence inside a tool-calling turn, delivered in strict
// temporal order
type Event struct {
	Type EventType

	// Chunk is the streamed text for EventChunk
	Chunk string

	// Tool fields, set for EventToolInvoked and EventToolCompleted
	ToolName   string
	ToolCallID string
	ToolArgs   map[string]any
	ToolResult any
	ToolError  string
}

// EmitFunc receives loop events. Returning an error stops the loop; the
// error propagates to the caller.
type EmitFunc func(Event) error

// ToolExecutor dispatches model-requested tool calls. Execute returns
// ErrToolNotFound (possibly wrapped) for unregistered names; any returned
// error is absorbed into a tool-result message, never a loop failure.
type ToolExecutor interface {
	Definitions() []ToolDefinition
	Execute(ctx context.Context, name string, args map[string]any) (any, error)
}

// Loop drives the tool-calling conversation with a model: request a
// completion, execute any requested tools, feed results back, repeat until
// the model answers in plain text or the iteration cap is hit.
//
// Tool failures become data the model can react to. Only provider transport
// failures abort the loop.
type Loop struct {
	provider      Provider
	tools         ToolExecutor
	maxIterations int
}

// NewLoop creates a loop bound to one provider and tool set. iterations <= 0
// selects the default cap.
func NewLoop(provider Provider, tools ToolExecutor, iterations int) *Loop {
	if iterations <= 0 {
		iterations = DefaultMaxIterations
	}
	return &Loop{
		provider:      provider,
		tools:         tools,
		maxIterations: iterations,
	}
}

// Run executes the turn, delivering events to emit in order. The messages
// slice is not mutated; the loop keeps its own running history.
//
// When the provider declares no tool-calling support the loop silently
// degrades to plain token streaming.
func (l *Loop) Run(ctx context.Context, messages []Message, emit EmitFunc) error {
	ctx, span := telemetry.StartSpan(ctx, "llm.tool_loop", telemetry.SpanAttributes{
		Provider:  l.provider.Name(),
		Operation: "tool_loop",
	})
	defer span.End()

	definitions := l.toolDefinitions()
	if len(definitions) == 0 || !l.provider.SupportsToolCalling() {
		if err := l.streamPlain(ctx, messages, emit); err != nil {
			span.SetError(err)
			return err
		}
		return nil
	}

	history := make([]Message, len(messages))
	copy(history, messages)

	for iteration := 1; iteration <= l.maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		completion, err := l.provider.CompleteWithTools(ctx, history, definitions)
		if err != nil {
			span.SetError(err)
			return err
		}

		if len(completion.ToolCalls) == 0 {
			return streamWords(ctx, completion.Content, emit)
		}

		history = append(history, Message{
			Role:      RoleAssistant,
			Content:   completion.Content,
			ToolCalls: completion.ToolCalls,
		})

		for _, call := range completion.ToolCalls {
			result, err := l.dispatch(ctx, call, emit)
			if err != nil {
				return err
			}
			history = append(history, result)
		}
	}

	return emit(Event{Type: EventChunk, Chunk: MaxIterationsNotice})
}

// dispatch executes one tool call and returns the tool-result message to
// append to the running history. Executor errors are converted to error
// content; only emit failures propagate.
func (l *Loop) dispatch(ctx context.Context, call ToolCall, emit EmitFunc) (Message, error) {
	if err := emit(Event{
		Type:       EventToolInvoked,
		ToolName:   call.Name,
		ToolCallID: call.ID,
		ToolArgs:   call.Arguments,
	}); err != nil {
		return Message{}, err
	}

	result, execErr := l.tools.Execute(ctx, call.Name, call.Arguments)

	completed := Event{
		Type:       EventToolCompleted,
		ToolName:   call.Name,
		ToolCallID: call.ID,
	}

	var content string
	switch {
	case errors.Is(execErr, ErrToolNotFound):
		content = fmt.Sprintf("Error: Tool '%s' not found", call.Name)
		completed.ToolError = content
	case execErr != nil:
		content = fmt.Sprintf("Error executing tool: %v", execErr)
		completed.ToolError = execErr.Error()
	default:
		content = marshalToolResult(result)
		completed.ToolResult = result
	}

	if err := emit(completed); err != nil {
		return Message{}, err
	}

	return ToolResultMessage(call.ID, content), nil
}

func (l *Loop) toolDefinitions() []ToolDefinition {
	if l.tools == nil {
		return nil
	}
	return l.tools.Definitions()
}

func (l *Loop) streamPlain(ctx context.Context, messages []Message, emit EmitFunc) error {
	return l.provider.CompleteStream(ctx, messages, func(chunk string) error {
		return emit(Event{Type: EventChunk, Chunk: chunk})
	})
}

// streamWords delivers a finished answer word by word, matching the typing
// cadence of native token streams
func streamWords(ctx context.Context, content string, emit EmitFunc) error {
	words := strings.Fields(content)
	for i, word := range words {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk := word
		if i < len(words)-1 {
			chunk += " "
		}
		if err := emit(Event{Type: EventChunk, Chunk: chunk}); err != nil {
			return err
		}
	}
	return nil
}

func marshalToolResult(result any) string {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(data)
}
