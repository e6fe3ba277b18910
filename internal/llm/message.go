package llm

import (
	"github.com/sashabaranov/go-openai/jsonschema"
)

// Role is the author of a prompt message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is the provider-neutral prompt message. Each provider maps it to
// its native representation preserving order and role semantics.
type Message struct {
	Role    Role
	Content string

	// ToolCalls is set on assistant messages that request tool execution.
	ToolCalls []ToolCall

	// ToolCallID links a tool-result message back to the call it answers.
	ToolCallID string
}

// ToolCall is a model-requested tool invocation. Created when a completion
// carries a call, consumed exactly once, then discarded.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolDefinition describes a callable tool to the model
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  *jsonschema.Definition
}

// Completion is a single non-streamed model response
type Completion struct {
	Content   string
	ToolCalls []ToolCall
}

// StreamFunc receives streamed text chunks. Returning an error stops the
// stream and propagates to the caller.
type StreamFunc func(chunk string) error

// SystemMessage builds a system message
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user message
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant message
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolResultMessage builds the message feeding a tool result back to the model
func ToolResultMessage(callID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID}
}
