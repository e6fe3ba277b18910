package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/studium-labs/studium/internal/api"
	"github.com/studium-labs/studium/internal/domain"
	"github.com/studium-labs/studium/internal/rag"
	"github.com/studium-labs/studium/internal/telemetry"
)

type RAGService interface {
	Search(ctx context.Context, params rag.SearchParams) (*rag.SearchResponse, error)
	CreateDocument(ctx context.Context, params rag.CreateDocumentParams) (*domain.Document, error)
	ListDocuments(ctx context.Context) ([]*domain.Document, error)
	GetDocument(ctx context.Context, id string) (*domain.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	CheckHealth(ctx context.Context) (*rag.Health, error)
}

// DocumentStorage presigns access to the original uploaded files
type DocumentStorage interface {
	GenerateDownloadURL(ctx context.Context, key string) (string, error)
	DeleteObject(ctx context.Context, key string) error
}

type RAGHandler struct {
	svc     RAGService
	storage DocumentStorage
}

// NewRAGHandler creates the retrieval and document management handler.
// storage may be nil when no object store is configured; download links
// are then unavailable.
func NewRAGHandler(svc RAGService, storage DocumentStorage) *RAGHandler {
	return &RAGHandler{svc: svc, storage: storage}
}

type SearchRequest struct {
	Query         string   `json:"query"`
	TopK          int      `json:"top_k"`
	MinSimilarity *float64 `json:"min_similarity"`
}

func (h *RAGHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.svc.Search(r.Context(), rag.SearchParams{
		Query:         req.Query,
		TopK:          req.TopK,
		MinSimilarity: req.MinSimilarity,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, resp)
}

type CreateDocumentRequest struct {
	Filename   string           `json:"filename"`
	Title      string           `json:"title"`
	StorageKey string           `json:"storage_key"`
	Chunks     []rag.ChunkInput `json:"chunks"`
}

type DocumentResponse struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	Title       string `json:"title,omitempty"`
	Status      string `json:"status"`
	ChunkCount  int    `json:"chunk_count"`
	LastError   string `json:"last_error,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	ProcessedAt string `json:"processed_at,omitempty"`
}

func documentToResponse(d *domain.Document) *DocumentResponse {
	resp := &DocumentResponse{
		ID:         d.ID,
		Filename:   d.Filename,
		Title:      d.Title,
		Status:     string(d.Status),
		ChunkCount: d.ChunkCount,
		LastError:  d.LastError,
		CreatedAt:  d.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:  d.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
	if d.ProcessedAt != nil {
		resp.ProcessedAt = d.ProcessedAt.Format("2006-01-02T15:04:05Z")
	}
	return resp
}

func (h *RAGHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	doc, err := h.svc.CreateDocument(r.Context(), rag.CreateDocumentParams{
		Filename:   req.Filename,
		Title:      req.Title,
		StorageKey: req.StorageKey,
		Chunks:     req.Chunks,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, documentToResponse(doc))
}

type DocumentListResponse struct {
	Items []*DocumentResponse `json:"items"`
	Count int                 `json:"count"`
}

func (h *RAGHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.ListDocuments(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*DocumentResponse, len(docs))
	for i, d := range docs {
		responses[i] = documentToResponse(d)
	}

	api.Success(w, http.StatusOK, DocumentListResponse{Items: responses, Count: len(responses)})
}

func (h *RAGHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	doc, err := h.svc.GetDocument(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, documentToResponse(doc))
}

func (h *RAGHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	doc, err := h.svc.GetDocument(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	if err := h.svc.DeleteDocument(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}

	// The stored original is best-effort cleanup; the record is already gone.
	if h.storage != nil && doc.StorageKey != "" {
		if err := h.storage.DeleteObject(r.Context(), doc.StorageKey); err != nil {
			telemetry.CaptureError(r.Context(), err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

type DownloadURLResponse struct {
	URL string `json:"url"`
}

func (h *RAGHandler) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if h.storage == nil {
		api.Error(w, http.StatusServiceUnavailable, "document storage is not configured")
		return
	}

	doc, err := h.svc.GetDocument(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	if doc.StorageKey == "" {
		api.Error(w, http.StatusNotFound, "document has no stored file")
		return
	}

	url, err := h.storage.GenerateDownloadURL(r.Context(), doc.StorageKey)
	if err != nil {
		api.HandleError(w, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to generate download url", err))
		return
	}

	api.Success(w, http.StatusOK, DownloadURLResponse{URL: url})
}

func (h *RAGHandler) Health(w http.ResponseWriter, r *http.Request) {
	health, err := h.svc.CheckHealth(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, health)
}
