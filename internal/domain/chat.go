package domain

import (
	"fmt"
	"time"
)

// SessionStatus represents the lifecycle state of a chat session
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
)

// MessageRole is the author of a conversation message
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one entry in a session's conversation log. Per user turn at
// most two are appended: the user message and the assistant answer. The
// system message is inserted once, only when the session has no history.
type Message struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Sources   []Source    `json:"sources,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// ChatSession represents one tutoring conversation and its prompt layering.
type ChatSession struct {
	ID             string
	UserID         string
	Title          string
	Status         SessionStatus
	Provider       string
	Model          string
	PromptGeneral  string
	Task           string
	Persona        string
	Objective      string
	PromptSpecific string
	Messages       []Message
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewChatSession creates an active session with an empty message log
func NewChatSession(id, userID, title, provider, model string, now time.Time) *ChatSession {
	return &ChatSession{
		ID:        id,
		UserID:    userID,
		Title:     title,
		Status:    SessionStatusActive,
		Provider:  provider,
		Model:     model,
		Messages:  nil,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsActive reports whether the session can still accept turns
func (s *ChatSession) IsActive() bool {
	return s.Status == SessionStatusActive
}

// ValidateChatSession validates a ChatSession instance
func ValidateChatSession(s *ChatSession) error {
	if s == nil {
		return fmt.Errorf("session cannot be nil")
	}

	if s.ID == "" {
		return fmt.Errorf("session ID is required")
	}

	if s.UserID == "" {
		return fmt.Errorf("session UserID is required")
	}

	if s.Provider == "" {
		return fmt.Errorf("session Provider is required")
	}

	if s.Model == "" {
		return fmt.Errorf("session Model is required")
	}

	if !isValidSessionStatus(s.Status) {
		return fmt.Errorf("session Status is invalid: %s", s.Status)
	}

	return nil
}

// ValidateMessage validates a conversation message
func ValidateMessage(m *Message) error {
	if m == nil {
		return fmt.Errorf("message cannot be nil")
	}

	if m.Content == "" {
		return fmt.Errorf("message Content is required")
	}

	if !isValidMessageRole(m.Role) {
		return fmt.Errorf("message Role is invalid: %s", m.Role)
	}

	return nil
}

// isValidSessionStatus checks if a SessionStatus is valid
func isValidSessionStatus(s SessionStatus) bool {
	switch s {
	case SessionStatusActive, SessionStatusCompleted:
		return true
	}
	return false
}

// isValidMessageRole checks if a MessageRole is valid
func isValidMessageRole(r MessageRole) bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}
