//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studium-labs/studium/internal/api/handlers"
	"github.com/studium-labs/studium/internal/chat"
	"github.com/studium-labs/studium/internal/jobs"
	"github.com/studium-labs/studium/internal/llm"
	"github.com/studium-labs/studium/internal/rag"
	"github.com/studium-labs/studium/internal/repository"
	"github.com/studium-labs/studium/internal/server"
	"github.com/studium-labs/studium/internal/testutil"
)

const (
	testAPIToken  = "e2e-service-token"
	testUserID    = "e2e-user"
	embeddingDims = 1536
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	Pool         *pgxpool.Pool
	ServerURL    string
	ServerCloser func()
	IndexWorker  *jobs.IndexWorker
	Provider     *scriptedProvider
	HTTPClient   *http.Client
}

// SetupE2EEnv starts a database container, runs migrations, and boots the
// full HTTP stack against it. Embeddings and model completions are local
// fakes; everything else is the real wiring.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	embedder := &hashEmbedder{}
	provider := &scriptedProvider{}

	documentRepo := repository.NewDocumentRepository(pool)
	chunkRepo := repository.NewDocumentChunkRepository(pool)
	sessionRepo := repository.NewChatSessionRepository(pool)
	configRepo := repository.NewChatConfigRepository(pool)
	searchLogRepo := repository.NewSearchLogRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	indexWorker := jobs.NewIndexWorker(documentRepo, chunkRepo, embedder, txRunner)

	registry := llm.NewRegistry()
	registry.Register("openai", func(model string) (llm.Provider, error) {
		return provider, nil
	})

	retriever := rag.NewRetriever(embedder, chunkRepo)
	ragSvc := rag.NewService(retriever, searchLogRepo, documentRepo, chunkRepo, configRepo)
	chatSvc := chat.NewService(sessionRepo, configRepo, registry, retriever)

	router := server.NewRouter(server.RouterConfig{
		APIToken:      testAPIToken,
		ChatHandler:   handlers.NewChatHandler(chatSvc),
		RAGHandler:    handlers.NewRAGHandler(ragSvc, nil),
		ConfigHandler: handlers.NewConfigHandler(configRepo),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return &E2ETestEnv{
		T:         t,
		Ctx:       ctx,
		PostgresC: pgC,
		Pool:      pool,
		ServerURL: serverURL,
		ServerCloser: func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		},
		IndexWorker: indexWorker,
		Provider:    provider,
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// RunIndexer drives the indexing worker until no pending work remains
func (e *E2ETestEnv) RunIndexer() {
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		if err := e.IndexWorker.ProcessJobs(e.Ctx); err != nil {
			e.T.Fatalf("indexer failed: %v", err)
		}

		var pending int
		err := e.Pool.QueryRow(e.Ctx,
			"SELECT COUNT(*) FROM documents WHERE status IN ('pending', 'processing')").Scan(&pending)
		if err != nil {
			e.T.Fatalf("failed to count pending documents: %v", err)
		}
		if pending == 0 {
			return
		}
	}
	e.T.Fatal("indexer did not drain pending documents in time")
}

// APIResponse represents a standard API response
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
	Code  string          `json:"code,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path string) (*APIResponse, error) {
	return e.doRequest("GET", path, nil)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}) (*APIResponse, error) {
	return e.doRequest("POST", path, body)
}

// Put performs a PUT request
func (e *E2ETestEnv) Put(path string, body interface{}) (*APIResponse, error) {
	return e.doRequest("PUT", path, body)
}

// Delete performs a DELETE request
func (e *E2ETestEnv) Delete(path string) (*APIResponse, error) {
	return e.doRequest("DELETE", path, nil)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}) (*APIResponse, error) {
	url := e.ServerURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+testAPIToken)
	req.Header.Set("X-User-ID", testUserID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNoContent {
		return &APIResponse{}, nil
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}

	return &apiResp, nil
}

// SSEEvent is one parsed server-sent event
type SSEEvent struct {
	Name string
	Data string
}

// StreamTurn posts one chat turn and collects the full SSE stream
func (e *E2ETestEnv) StreamTurn(sessionID, message string) ([]SSEEvent, error) {
	body, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/chat/sessions/%s/messages/stream", e.ServerURL, sessionID)
	req, err := http.NewRequest("POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+testAPIToken)
	req.Header.Set("X-User-ID", testUserID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, raw)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var events []SSEEvent
	var current SSEEvent
	for _, line := range strings.Split(string(raw), "\n") {
		switch {
		case strings.HasPrefix(line, "event: "):
			current.Name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.Data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if current.Name != "" {
				events = append(events, current)
				current = SSEEvent{}
			}
		}
	}
	return events, nil
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// hashEmbedder produces deterministic unit-norm vectors: identical text
// always embeds identically, so stored chunks match their own query text
// with similarity 1.0.
type hashEmbedder struct{}

func (h *hashEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, embeddingDims)
	hasher := fnv.New32a()
	hasher.Write([]byte(text))
	seed := hasher.Sum32()
	v[seed%embeddingDims] = 1.0
	return v, nil
}

func (h *hashEmbedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		e, err := h.GenerateEmbedding(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

// scriptedProvider replays queued completions; with nothing queued it
// streams a fixed answer
type scriptedProvider struct {
	completions []*llm.Completion
	calls       int
}

func (p *scriptedProvider) Script(completions ...*llm.Completion) {
	p.completions = completions
	p.calls = 0
}

func (p *scriptedProvider) Name() string  { return "openai" }
func (p *scriptedProvider) Model() string { return "scripted" }

func (p *scriptedProvider) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	return "scripted answer", nil
}

func (p *scriptedProvider) CompleteStream(ctx context.Context, messages []llm.Message, fn llm.StreamFunc) error {
	if err := fn("scripted "); err != nil {
		return err
	}
	return fn("answer")
}

func (p *scriptedProvider) CompleteWithTools(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition) (*llm.Completion, error) {
	if p.calls < len(p.completions) {
		c := p.completions[p.calls]
		p.calls++
		return c, nil
	}
	return &llm.Completion{Content: "scripted answer"}, nil
}

func (p *scriptedProvider) SupportsToolCalling() bool { return true }
