package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/studium-labs/studium/internal/api/handlers"
	"github.com/studium-labs/studium/internal/chat"
	"github.com/studium-labs/studium/internal/domain"
	"github.com/studium-labs/studium/internal/rag"
)

type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) CreateSession(ctx context.Context, params chat.CreateSessionParams) (*domain.ChatSession, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ChatSession), args.Error(1)
}

func (m *MockChatService) GetSession(ctx context.Context, id, userID string) (*domain.ChatSession, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ChatSession), args.Error(1)
}

func (m *MockChatService) ListSessions(ctx context.Context, userID, cursor string, limit int) (*chat.SessionPageResult, error) {
	args := m.Called(ctx, userID, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chat.SessionPageResult), args.Error(1)
}

func (m *MockChatService) CompleteSession(ctx context.Context, id, userID string) error {
	args := m.Called(ctx, id, userID)
	return args.Error(0)
}

func (m *MockChatService) DeleteSession(ctx context.Context, id, userID string) error {
	args := m.Called(ctx, id, userID)
	return args.Error(0)
}

func (m *MockChatService) StreamMessage(ctx context.Context, sessionID, userID, message string, useRAG bool) (<-chan chat.StreamEvent, error) {
	args := m.Called(ctx, sessionID, userID, message, useRAG)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(<-chan chat.StreamEvent), args.Error(1)
}

type MockRAGService struct {
	mock.Mock
}

func (m *MockRAGService) Search(ctx context.Context, params rag.SearchParams) (*rag.SearchResponse, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rag.SearchResponse), args.Error(1)
}

func (m *MockRAGService) CreateDocument(ctx context.Context, params rag.CreateDocumentParams) (*domain.Document, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockRAGService) ListDocuments(ctx context.Context) ([]*domain.Document, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Document), args.Error(1)
}

func (m *MockRAGService) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockRAGService) DeleteDocument(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRAGService) CheckHealth(ctx context.Context) (*rag.Health, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rag.Health), args.Error(1)
}

type MockConfigStore struct {
	mock.Mock
}

func (m *MockConfigStore) Get(ctx context.Context) (*domain.ChatConfig, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ChatConfig), args.Error(1)
}

func (m *MockConfigStore) Update(ctx context.Context, cfg *domain.ChatConfig) error {
	args := m.Called(ctx, cfg)
	return args.Error(0)
}

const testAPIToken = "test-service-token"

func setupRouter() (http.Handler, *MockChatService, *MockRAGService, *MockConfigStore) {
	chatSvc := new(MockChatService)
	ragSvc := new(MockRAGService)
	configStore := new(MockConfigStore)

	cfg := RouterConfig{
		APIToken:      testAPIToken,
		ChatHandler:   handlers.NewChatHandler(chatSvc),
		RAGHandler:    handlers.NewRAGHandler(ragSvc, nil),
		ConfigHandler: handlers.NewConfigHandler(configStore),
	}

	return NewRouter(cfg), chatSvc, ragSvc, configStore
}

func TestRouter_HealthEndpoint(t *testing.T) {
	router, _, _, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
}

func TestRouter_AuthenticatedRoutes_RequireAuth(t *testing.T) {
	router, _, _, _ := setupRouter()

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/chat/sessions"},
		{http.MethodGet, "/chat/sessions"},
		{http.MethodGet, "/chat/sessions/123"},
		{http.MethodPost, "/chat/sessions/123/complete"},
		{http.MethodDelete, "/chat/sessions/123"},
		{http.MethodPost, "/chat/sessions/123/messages/stream"},
		{http.MethodPost, "/search"},
		{http.MethodPost, "/documents"},
		{http.MethodGet, "/documents"},
		{http.MethodGet, "/documents/123"},
		{http.MethodGet, "/documents/123/download"},
		{http.MethodGet, "/rag/health"},
		{http.MethodGet, "/config"},
		{http.MethodPut, "/config"},
	}

	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			req := httptest.NewRequest(route.method, route.path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestRouter_AuthenticatedRoutes_WithValidAuth(t *testing.T) {
	router, chatSvc, _, _ := setupRouter()

	now := time.Now().UTC()
	session := domain.NewChatSession("sess-123", "user-456", "Calculus", "openai", "gpt-4o-mini", now)
	chatSvc.On("GetSession", mock.Anything, "sess-123", "user-456").Return(session, nil)

	req := httptest.NewRequest(http.MethodGet, "/chat/sessions/sess-123", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIToken)
	req.Header.Set("X-User-ID", "user-456")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	chatSvc.AssertExpectations(t)
}

func TestRouter_WrongToken(t *testing.T) {
	router, _, _, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/rag/health", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	req.Header.Set("X-User-ID", "user-456")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_RAGHealthWithAuth(t *testing.T) {
	router, _, ragSvc, _ := setupRouter()

	ragSvc.On("CheckHealth", mock.Anything).Return(&rag.Health{DocumentCount: 1, ProcessedCount: 1, ChunkCount: 4, Ready: true}, nil)

	req := httptest.NewRequest(http.MethodGet, "/rag/health", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIToken)
	req.Header.Set("X-User-ID", "user-456")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ready":true`)
}
