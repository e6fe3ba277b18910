package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/studium-labs/studium/internal/api"
	"github.com/studium-labs/studium/internal/api/middleware"
	"github.com/studium-labs/studium/internal/chat"
	"github.com/studium-labs/studium/internal/domain"
	"github.com/studium-labs/studium/internal/llm"
	"github.com/studium-labs/studium/internal/tools"
)

type ChatService interface {
	CreateSession(ctx context.Context, params chat.CreateSessionParams) (*domain.ChatSession, error)
	GetSession(ctx context.Context, id, userID string) (*domain.ChatSession, error)
	ListSessions(ctx context.Context, userID, cursor string, limit int) (*chat.SessionPageResult, error)
	CompleteSession(ctx context.Context, id, userID string) error
	DeleteSession(ctx context.Context, id, userID string) error
	StreamMessage(ctx context.Context, sessionID, userID, message string, useRAG bool) (<-chan chat.StreamEvent, error)
}

type ChatHandler struct {
	svc ChatService
}

func NewChatHandler(svc ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type CreateSessionRequest struct {
	Title          string `json:"title"`
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	PromptGeneral  string `json:"prompt_general"`
	Task           string `json:"task"`
	Persona        string `json:"persona"`
	Objective      string `json:"objective"`
	PromptSpecific string `json:"prompt_specific"`
}

type SessionResponse struct {
	ID             string           `json:"id"`
	Title          string           `json:"title"`
	Status         string           `json:"status"`
	Provider       string           `json:"provider"`
	Model          string           `json:"model"`
	PromptGeneral  string           `json:"prompt_general,omitempty"`
	Task           string           `json:"task,omitempty"`
	Persona        string           `json:"persona,omitempty"`
	Objective      string           `json:"objective,omitempty"`
	PromptSpecific string           `json:"prompt_specific,omitempty"`
	Messages       []domain.Message `json:"messages,omitempty"`
	MessageCount   int              `json:"message_count"`
	CreatedAt      string           `json:"created_at"`
	UpdatedAt      string           `json:"updated_at"`
}

func sessionToResponse(s *domain.ChatSession, includeMessages bool) *SessionResponse {
	resp := &SessionResponse{
		ID:             s.ID,
		Title:          s.Title,
		Status:         string(s.Status),
		Provider:       s.Provider,
		Model:          s.Model,
		PromptGeneral:  s.PromptGeneral,
		Task:           s.Task,
		Persona:        s.Persona,
		Objective:      s.Objective,
		PromptSpecific: s.PromptSpecific,
		MessageCount:   len(s.Messages),
		CreatedAt:      s.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:      s.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
	if includeMessages {
		resp.Messages = s.Messages
	}
	return resp
}

func (h *ChatHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Provider == "" {
		api.Error(w, http.StatusBadRequest, "provider is required")
		return
	}
	if req.Model == "" {
		api.Error(w, http.StatusBadRequest, "model is required")
		return
	}

	session, err := h.svc.CreateSession(r.Context(), chat.CreateSessionParams{
		UserID:         userID,
		Title:          req.Title,
		Provider:       req.Provider,
		Model:          req.Model,
		PromptGeneral:  req.PromptGeneral,
		Task:           req.Task,
		Persona:        req.Persona,
		Objective:      req.Objective,
		PromptSpecific: req.PromptSpecific,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, sessionToResponse(session, false))
}

func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	session, err := h.svc.GetSession(r.Context(), id, userID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, sessionToResponse(session, true))
}

type SessionListResponse struct {
	Items   []*SessionResponse `json:"items"`
	Cursor  string             `json:"cursor,omitempty"`
	HasMore bool               `json:"has_more"`
}

func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	cursor := r.URL.Query().Get("cursor")
	limitStr := r.URL.Query().Get("limit")
	limit := 20
	if limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	page, err := h.svc.ListSessions(r.Context(), userID, cursor, limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*SessionResponse, len(page.Items))
	for i, s := range page.Items {
		responses[i] = sessionToResponse(s, false)
	}

	api.Success(w, http.StatusOK, SessionListResponse{
		Items:   responses,
		Cursor:  page.NextCursor,
		HasMore: page.HasMore,
	})
}

func (h *ChatHandler) Complete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.svc.CompleteSession(r.Context(), id, userID); err != nil {
		api.HandleError(w, err)
		return
	}

	session, err := h.svc.GetSession(r.Context(), id, userID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, sessionToResponse(session, false))
}

func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.svc.DeleteSession(r.Context(), id, userID); err != nil {
		api.HandleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type StreamMessageRequest struct {
	Message string `json:"message"`
	UseRAG  *bool  `json:"use_rag"`
}

// Stream runs one user turn and relays the event stream as server-sent
// events. Each event is named after its type and carries a JSON payload.
// The response status is committed before the turn runs, so turn failures
// surface as a terminal error event rather than an HTTP status.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req StreamMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	useRAG := true
	if req.UseRAG != nil {
		useRAG = *req.UseRAG
	}

	events, err := h.svc.StreamMessage(r.Context(), id, userID, req.Message, useRAG)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		api.Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	writer := &sseWriter{w: w, flusher: flusher}
	for ev := range events {
		writer.WriteEvent(ev)
	}
}

type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

type sseMessagePayload struct {
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Sources   []domain.Source `json:"sources,omitempty"`
	CreatedAt string          `json:"created_at"`
}

type sseToolPayload struct {
	ToolName   string         `json:"tool_name"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	Result     any            `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
}

type sseChunkPayload struct {
	Content string `json:"content"`
}

type sseErrorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// WriteEvent maps one turn event onto the wire. Search tool events get
// dedicated names so clients can render retrieval activity distinctly.
func (s *sseWriter) WriteEvent(ev chat.StreamEvent) {
	switch ev.Type {
	case chat.EventUserMessage:
		s.write("user_message", messagePayload(ev.Message))
	case chat.EventToolInvoked:
		name := "tool_call"
		if ev.ToolName == llm.ToolSemanticSearch {
			name = "rag_search"
		}
		s.write(name, sseToolPayload{ToolName: ev.ToolName, ToolCallID: ev.ToolCallID, Args: ev.ToolArgs})
	case chat.EventToolCompleted:
		name := "tool_result"
		switch ev.ToolName {
		case llm.ToolSemanticSearch:
			name = "rag_search_result"
		case llm.ToolRefinePrompt:
			name = "refine_prompt_result"
		}
		s.write(name, sseToolPayload{
			ToolName:   ev.ToolName,
			ToolCallID: ev.ToolCallID,
			Result:     toolResultPayload(ev.ToolResult),
			Error:      ev.ToolError,
		})
	case chat.EventChunk:
		s.write("chunk", sseChunkPayload{Content: ev.Chunk})
	case chat.EventDone:
		s.write("done", messagePayload(ev.Message))
	case chat.EventError:
		payload := sseErrorPayload{Error: "internal error"}
		var domainErr *domain.DomainError
		if errors.As(ev.Err, &domainErr) {
			payload.Error = domainErr.Message
			payload.Code = domainErr.Code
		} else if ev.Err != nil {
			payload.Error = ev.Err.Error()
		}
		s.write("error", payload)
	}
}

func (s *sseWriter) write(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if _, err := s.w.Write([]byte("event: " + event + "\ndata: " + string(data) + "\n\n")); err != nil {
		return
	}
	s.flusher.Flush()
}

func messagePayload(m *domain.Message) sseMessagePayload {
	if m == nil {
		return sseMessagePayload{}
	}
	return sseMessagePayload{
		Role:      string(m.Role),
		Content:   m.Content,
		Sources:   m.Sources,
		CreatedAt: m.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// toolResultPayload keeps structured tool payloads structured on the wire
// and passes anything else through as-is
func toolResultPayload(result any) any {
	switch v := result.(type) {
	case *tools.SearchPayload:
		return v
	case *tools.RefineResult:
		return v
	default:
		return result
	}
}
