package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/studium-labs/studium/internal/domain"
	"github.com/studium-labs/studium/internal/telemetry"
)

// SearchLogEntry records one retrieval for later relevance evaluation
type SearchLogEntry struct {
	Query         string
	TopK          int
	MinSimilarity float64
	Results       []domain.SearchResult
	DurationMs    int64
}

// SearchLogStore persists search logs
type SearchLogStore interface {
	CreateSearchLog(ctx context.Context, entry SearchLogEntry) (string, error)
}

// DocumentStore persists document records. Deleting a document cascades to
// its chunks.
type DocumentStore interface {
	Create(ctx context.Context, d *domain.Document) error
	List(ctx context.Context) ([]*domain.Document, error)
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	Delete(ctx context.Context, id string) error
}

// ChunkWriter writes the pre-split chunk rows for a new document
type ChunkWriter interface {
	InsertChunks(ctx context.Context, chunks []domain.DocumentChunk) error
}

// ConfigStore reads the chat configuration singleton
type ConfigStore interface {
	Get(ctx context.Context) (*domain.ChatConfig, error)
}

// Service exposes direct retrieval outside the chat loop: the search
// endpoint, document listing, and corpus health.
type Service struct {
	retriever *Retriever
	logs      SearchLogStore
	docs      DocumentStore
	chunks    ChunkWriter
	configs   ConfigStore
	newID     func() string
}

func NewService(retriever *Retriever, logs SearchLogStore, docs DocumentStore, chunks ChunkWriter, configs ConfigStore) *Service {
	return &Service{
		retriever: retriever,
		logs:      logs,
		docs:      docs,
		chunks:    chunks,
		configs:   configs,
		newID:     uuid.NewString,
	}
}

// SearchParams carries one direct search request. TopK zero selects the
// configured default; a nil MinSimilarity selects the configured threshold.
type SearchParams struct {
	Query         string
	TopK          int
	MinSimilarity *float64
}

// SearchResponse is the ranked result set plus timing
type SearchResponse struct {
	Results    []domain.SearchResult `json:"results"`
	Count      int                   `json:"count"`
	DurationMs int64                 `json:"duration_ms"`
}

// Search runs one retrieval against the indexed corpus and logs it. Log
// write failures are reported but never fail the search.
func (s *Service) Search(ctx context.Context, params SearchParams) (*SearchResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "rag.search", telemetry.SpanAttributes{
		Operation: "search",
	})
	defer span.End()

	if params.Query == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "query cannot be empty")
	}

	cfg, err := s.configs.Get(ctx)
	if err != nil || cfg == nil {
		telemetry.CaptureError(ctx, err)
		cfg = domain.DefaultChatConfig()
	}

	minSimilarity := cfg.SimilarityThreshold
	if params.MinSimilarity != nil {
		minSimilarity = *params.MinSimilarity
	}

	start := time.Now()
	results, err := s.retriever.Search(ctx, params.Query, SearchOptions{
		TopK:          params.TopK,
		MinSimilarity: minSimilarity,
		DefaultTopK:   cfg.DefaultTopK,
		MaxTopK:       cfg.MaxTopK,
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	duration := time.Since(start).Milliseconds()

	if _, err := s.logs.CreateSearchLog(ctx, SearchLogEntry{
		Query:         params.Query,
		TopK:          params.TopK,
		MinSimilarity: minSimilarity,
		Results:       results,
		DurationMs:    duration,
	}); err != nil {
		telemetry.CaptureError(ctx, err)
	}

	return &SearchResponse{
		Results:    results,
		Count:      len(results),
		DurationMs: duration,
	}, nil
}

// ChunkInput is one pre-split chunk of an incoming document
type ChunkInput struct {
	Content string `json:"content"`
	Page    *int   `json:"page,omitempty"`
}

// CreateDocumentParams carries a document whose text is already split into
// chunks. Embeddings are computed later by the indexing worker.
type CreateDocumentParams struct {
	Filename   string
	Title      string
	StorageKey string
	Chunks     []ChunkInput
}

// CreateDocument registers a pending document and its chunk rows. The
// indexing worker picks it up on its next poll.
func (s *Service) CreateDocument(ctx context.Context, params CreateDocumentParams) (*domain.Document, error) {
	if params.Filename == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "filename cannot be empty")
	}
	if len(params.Chunks) == 0 {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "document must have at least one chunk")
	}
	for i, c := range params.Chunks {
		if strings.TrimSpace(c.Content) == "" {
			return nil, domain.NewDomainError(domain.ErrCodeValidation, fmt.Sprintf("chunk %d has empty content", i))
		}
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		ID:         s.newID(),
		Filename:   params.Filename,
		Title:      params.Title,
		Status:     domain.DocumentStatusPending,
		StorageKey: params.StorageKey,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	ctx, span := telemetry.StartSpan(ctx, "rag.create_document", telemetry.SpanAttributes{
		DocumentID: doc.ID,
		Operation:  "create_document",
	})
	defer span.End()

	if err := s.docs.Create(ctx, doc); err != nil {
		span.SetError(err)
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to create document", err)
	}

	chunks := make([]domain.DocumentChunk, len(params.Chunks))
	for i, c := range params.Chunks {
		chunks[i] = domain.DocumentChunk{
			ID:         s.newID(),
			DocumentID: doc.ID,
			ChunkIndex: i,
			Content:    c.Content,
			Page:       c.Page,
			CreatedAt:  now,
		}
	}

	if err := s.chunks.InsertChunks(ctx, chunks); err != nil {
		span.SetError(err)
		// Keep the tables consistent: drop the document we just created.
		if delErr := s.docs.Delete(ctx, doc.ID); delErr != nil {
			telemetry.CaptureError(ctx, delErr)
		}
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to insert chunks", err)
	}

	return doc, nil
}

// DeleteDocument removes a document and, via cascade, its chunks
func (s *Service) DeleteDocument(ctx context.Context, id string) error {
	if _, err := s.docs.GetByID(ctx, id); err != nil {
		return err
	}
	return s.docs.Delete(ctx, id)
}

// ListDocuments returns all documents, newest first
func (s *Service) ListDocuments(ctx context.Context) ([]*domain.Document, error) {
	return s.docs.List(ctx)
}

// GetDocument returns a single document by id
func (s *Service) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	return s.docs.GetByID(ctx, id)
}

// Health summarizes corpus readiness
type Health struct {
	DocumentCount  int  `json:"document_count"`
	ProcessedCount int  `json:"processed_count"`
	PendingCount   int  `json:"pending_count"`
	FailedCount    int  `json:"failed_count"`
	ChunkCount     int  `json:"chunk_count"`
	Ready          bool `json:"ready"`
}

// CheckHealth reports how much of the corpus is searchable. Ready means at
// least one document is fully indexed.
func (s *Service) CheckHealth(ctx context.Context) (*Health, error) {
	docs, err := s.docs.List(ctx)
	if err != nil {
		return nil, domain.RetrievalError(err)
	}

	health := &Health{DocumentCount: len(docs)}
	for _, d := range docs {
		switch d.Status {
		case domain.DocumentStatusProcessed:
			health.ProcessedCount++
			health.ChunkCount += d.ChunkCount
		case domain.DocumentStatusPending, domain.DocumentStatusProcessing:
			health.PendingCount++
		case domain.DocumentStatusFailed:
			health.FailedCount++
		}
	}
	health.Ready = health.ProcessedCount > 0
	return health, nil
}
