package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/studium-labs/studium/internal/domain"
	"github.com/studium-labs/studium/internal/llm"
	"github.com/studium-labs/studium/internal/pagination"
	"github.com/studium-labs/studium/internal/rag"
	"github.com/studium-labs/studium/internal/telemetry"
	"github.com/studium-labs/studium/internal/tools"
)

// streamBuffer bounds the event channel; the transport is the single reader
const streamBuffer = 16

// SessionRepositoryInterface defines the repository interface for chat
// session persistence. AppendMessages is atomic per call.
type SessionRepositoryInterface interface {
	Create(ctx context.Context, s *domain.ChatSession) error
	GetByID(ctx context.Context, id string) (*domain.ChatSession, error)
	ListByUserWithCursor(ctx context.Context, userID string, cursor *pagination.Cursor, limit int) (*SessionPageResult, error)
	AppendMessages(ctx context.Context, sessionID string, messages []domain.Message) error
	UpdateStatus(ctx context.Context, sessionID string, status domain.SessionStatus) error
	Delete(ctx context.Context, sessionID string) error
}

type SessionPageResult struct {
	Items      []*domain.ChatSession
	NextCursor string
	HasMore    bool
}

// ConfigRepositoryInterface reads the chat configuration singleton
type ConfigRepositoryInterface interface {
	Get(ctx context.Context) (*domain.ChatConfig, error)
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// Service is the session orchestrator: it accepts user turns, drives the
// tool-calling loop, streams events, and persists exactly one user plus
// assistant message pair per successful turn.
type Service struct {
	sessionRepo SessionRepositoryInterface
	configRepo  ConfigRepositoryInterface
	registry    *llm.Registry
	retriever   *rag.Retriever
	uuidGen     UUIDGenerator
}

// NewService creates a new chat Service instance
func NewService(
	sessionRepo SessionRepositoryInterface,
	configRepo ConfigRepositoryInterface,
	registry *llm.Registry,
	retriever *rag.Retriever,
) *Service {
	return &Service{
		sessionRepo: sessionRepo,
		configRepo:  configRepo,
		registry:    registry,
		retriever:   retriever,
		uuidGen:     &DefaultUUIDGenerator{},
	}
}

// NewServiceWithUUIDGen creates a Service with a custom UUID generator (for testing)
func NewServiceWithUUIDGen(
	sessionRepo SessionRepositoryInterface,
	configRepo ConfigRepositoryInterface,
	registry *llm.Registry,
	retriever *rag.Retriever,
	uuidGen UUIDGenerator,
) *Service {
	s := NewService(sessionRepo, configRepo, registry, retriever)
	s.uuidGen = uuidGen
	return s
}

// CreateSessionParams carries the fields for a new session
type CreateSessionParams struct {
	UserID         string
	Title          string
	Provider       string
	Model          string
	PromptGeneral  string
	Task           string
	Persona        string
	Objective      string
	PromptSpecific string
}

// CreateSession creates an active session bound to one provider and model
func (s *Service) CreateSession(ctx context.Context, params CreateSessionParams) (*domain.ChatSession, error) {
	ctx, span := telemetry.StartSpan(ctx, "chat.create_session", telemetry.SpanAttributes{
		Provider:  params.Provider,
		Operation: "create_session",
	})
	defer span.End()

	if !s.registry.Has(params.Provider) {
		return nil, domain.ErrInvalidProvider
	}

	now := time.Now().UTC()
	session := domain.NewChatSession(s.uuidGen.NewString(), params.UserID, params.Title, params.Provider, params.Model, now)
	session.PromptGeneral = params.PromptGeneral
	session.Task = params.Task
	session.Persona = params.Persona
	session.Objective = params.Objective
	session.PromptSpecific = params.PromptSpecific

	if err := domain.ValidateChatSession(session); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid session", err)
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		span.SetError(err)
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to create session", err)
	}

	return session, nil
}

// GetSession fetches a session owned by userID
func (s *Service) GetSession(ctx context.Context, id, userID string) (*domain.ChatSession, error) {
	session, err := s.sessionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil || session.UserID != userID {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// ListSessions lists a user's sessions with cursor pagination
func (s *Service) ListSessions(ctx context.Context, userID, cursorStr string, limit int) (*SessionPageResult, error) {
	cursor, err := pagination.DecodeCursor(cursorStr)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
	}
	return s.sessionRepo.ListByUserWithCursor(ctx, userID, cursor, limit)
}

// CompleteSession marks a session completed; further turns are rejected
func (s *Service) CompleteSession(ctx context.Context, id, userID string) error {
	session, err := s.GetSession(ctx, id, userID)
	if err != nil {
		return err
	}
	return s.sessionRepo.UpdateStatus(ctx, session.ID, domain.SessionStatusCompleted)
}

// DeleteSession removes a session owned by userID along with its history
func (s *Service) DeleteSession(ctx context.Context, id, userID string) error {
	session, err := s.GetSession(ctx, id, userID)
	if err != nil {
		return err
	}
	return s.sessionRepo.Delete(ctx, session.ID)
}

// StreamMessage handles one user turn. It validates the session up front,
// then returns a bounded event channel the transport consumes: user_message
// first, tool and chunk events in order, and a terminal done or error.
//
// The user and assistant messages are persisted together only after the
// full answer is assembled. Caller cancellation stops provider requests and
// drops the partial exchange without persisting.
func (s *Service) StreamMessage(ctx context.Context, sessionID, userID, message string, useRAG bool) (<-chan StreamEvent, error) {
	if strings.TrimSpace(message) == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "message cannot be empty")
	}

	session, err := s.GetSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive() {
		return nil, domain.ErrSessionNotActive
	}

	cfg, err := s.configRepo.Get(ctx)
	if err != nil || cfg == nil {
		telemetry.CaptureError(ctx, err)
		cfg = domain.DefaultChatConfig()
	}

	provider, err := s.registry.Resolve(session.Provider, session.Model)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "cannot resolve provider", err)
	}

	events := make(chan StreamEvent, streamBuffer)
	go s.runTurn(ctx, session, provider, cfg, message, useRAG, events)
	return events, nil
}

func (s *Service) runTurn(
	ctx context.Context,
	session *domain.ChatSession,
	provider llm.Provider,
	cfg *domain.ChatConfig,
	message string,
	useRAG bool,
	events chan<- StreamEvent,
) {
	defer close(events)

	ctx, span := telemetry.StartSpan(ctx, "chat.stream_message", telemetry.SpanAttributes{
		SessionID: session.ID,
		Provider:  provider.Name(),
		Operation: "stream_message",
	})
	defer span.End()

	emit := func(ev StreamEvent) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case events <- ev:
			return nil
		}
	}

	now := time.Now().UTC()
	prompt := BuildContext(session, useRAG && cfg.IncludeRAGInstruction)

	// The system message is persisted once, only when the session has no
	// prior history.
	var systemMessage *domain.Message
	if len(session.Messages) == 0 && len(prompt) > 0 && prompt[0].Role == llm.RoleSystem {
		systemMessage = &domain.Message{
			Role:      domain.RoleSystem,
			Content:   prompt[0].Content,
			CreatedAt: now,
		}
	}

	userMessage := domain.Message{
		Role:      domain.RoleUser,
		Content:   message,
		CreatedAt: now,
	}
	if err := emit(StreamEvent{Type: EventUserMessage, Message: &userMessage}); err != nil {
		return
	}

	conversation := append(prompt, llm.UserMessage(message))

	var full strings.Builder
	var sources []domain.Source

	var runErr error
	if useRAG && cfg.ToolCallingEnabled {
		loop := llm.NewLoop(provider, s.buildTools(provider, cfg), cfg.ToolCallingMaxIterations)
		runErr = loop.Run(ctx, conversation, func(ev llm.Event) error {
			switch ev.Type {
			case llm.EventChunk:
				full.WriteString(ev.Chunk)
				return emit(StreamEvent{Type: EventChunk, Chunk: ev.Chunk})
			case llm.EventToolInvoked:
				return emit(StreamEvent{
					Type:     EventToolInvoked,
					ToolName: ev.ToolName, ToolCallID: ev.ToolCallID, ToolArgs: ev.ToolArgs,
				})
			case llm.EventToolCompleted:
				if payload, ok := ev.ToolResult.(*tools.SearchPayload); ok {
					sources = append(sources, payload.Sources...)
				}
				return emit(StreamEvent{
					Type:     EventToolCompleted,
					ToolName: ev.ToolName, ToolCallID: ev.ToolCallID,
					ToolResult: ev.ToolResult, ToolError: ev.ToolError,
				})
			}
			return nil
		})
	} else {
		runErr = provider.CompleteStream(ctx, conversation, func(chunk string) error {
			full.WriteString(chunk)
			return emit(StreamEvent{Type: EventChunk, Chunk: chunk})
		})
	}

	if runErr != nil {
		// Caller gone: drop the partial exchange, persist nothing.
		if ctx.Err() != nil {
			return
		}
		span.SetError(runErr)
		_ = emit(StreamEvent{Type: EventError, Err: asProviderError(provider.Name(), runErr)})
		return
	}

	assistantMessage := domain.Message{
		Role:      domain.RoleAssistant,
		Content:   full.String(),
		Sources:   dedupeSources(sources),
		CreatedAt: time.Now().UTC(),
	}

	toAppend := make([]domain.Message, 0, 3)
	if systemMessage != nil {
		toAppend = append(toAppend, *systemMessage)
	}
	toAppend = append(toAppend, userMessage, assistantMessage)

	if err := s.sessionRepo.AppendMessages(ctx, session.ID, toAppend); err != nil {
		span.SetError(err)
		_ = emit(StreamEvent{Type: EventError, Err: domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to persist exchange", err)})
		return
	}

	_ = emit(StreamEvent{Type: EventDone, Message: &assistantMessage})
}

// buildTools assembles the per-turn tool registry against the configuration
// snapshot the turn started with
func (s *Service) buildTools(provider llm.Provider, cfg *domain.ChatConfig) *tools.Registry {
	registry := tools.NewRegistry()
	registry.Register(tools.NewSemanticSearchTool(s.retriever, cfg))
	registry.Register(tools.NewRefinePromptTool(provider, cfg.PromptRefine))
	return registry
}

func asProviderError(provider string, err error) error {
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	return domain.ProviderError(provider, err)
}

// dedupeSources keeps the first occurrence of each (document, page) pair
func dedupeSources(sources []domain.Source) []domain.Source {
	if len(sources) == 0 {
		return nil
	}

	type key struct {
		documentID string
		page       int
		hasPage    bool
	}
	seen := make(map[key]struct{}, len(sources))
	out := make([]domain.Source, 0, len(sources))

	for _, src := range sources {
		k := key{documentID: src.DocumentID}
		if src.Page != nil {
			k.page = *src.Page
			k.hasPage = true
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, src)
	}

	return out
}
