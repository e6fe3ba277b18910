package chat

import (
	"github.com/studium-labs/studium/internal/domain"
)

// EventType tags the events streamed to the transport layer
type EventType string

const (
	EventUserMessage   EventType = "user_message"
	EventToolInvoked   EventType = "tool_invoked"
	EventToolCompleted EventType = "tool_completed"
	EventChunk         EventType = "chunk"
	EventDone          EventType = "done"
	EventError         EventType = "error"
)

// StreamEvent is one occurrence in a streamed turn, produced in strict
// temporal order. A turn always terminates with exactly one Done or one
// Error event; only the Done payload is durably stored.
type StreamEvent struct {
	Type EventType

	// Message carries the user message for EventUserMessage and the
	// assembled assistant message for EventDone
	Message *domain.Message

	// Chunk is the streamed text for EventChunk
	Chunk string

	// Tool fields, set for EventToolInvoked and EventToolCompleted
	ToolName   string
	ToolCallID string
	ToolArgs   map[string]any
	ToolResult any
	ToolError  string

	// Err is set for EventError
	Err error
}
