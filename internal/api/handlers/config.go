package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/studium-labs/studium/internal/api"
	"github.com/studium-labs/studium/internal/domain"
)

// ConfigStore reads and replaces the chat configuration singleton
type ConfigStore interface {
	Get(ctx context.Context) (*domain.ChatConfig, error)
	Update(ctx context.Context, cfg *domain.ChatConfig) error
}

type ConfigHandler struct {
	store ConfigStore
}

func NewConfigHandler(store ConfigStore) *ConfigHandler {
	return &ConfigHandler{store: store}
}

func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.store.Get(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, cfg)
}

type UpdateConfigRequest struct {
	DefaultTopK              int     `json:"default_top_k"`
	MaxTopK                  int     `json:"max_top_k"`
	SimilarityThreshold      float64 `json:"similarity_threshold"`
	ToolCallingEnabled       bool    `json:"tool_calling_enabled"`
	ToolCallingMaxIterations int     `json:"tool_calling_max_iterations"`
	ToolSimilarityRelaxation float64 `json:"tool_similarity_relaxation"`
	IncludeRAGInstruction    bool    `json:"include_rag_instruction"`
	PromptRefine             string  `json:"prompt_refine"`
}

// Update replaces the whole configuration record. Partial updates are not
// supported; clients send the full document back.
func (h *ConfigHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg := &domain.ChatConfig{
		DefaultTopK:              req.DefaultTopK,
		MaxTopK:                  req.MaxTopK,
		SimilarityThreshold:      req.SimilarityThreshold,
		ToolCallingEnabled:       req.ToolCallingEnabled,
		ToolCallingMaxIterations: req.ToolCallingMaxIterations,
		ToolSimilarityRelaxation: req.ToolSimilarityRelaxation,
		IncludeRAGInstruction:    req.IncludeRAGInstruction,
		PromptRefine:             req.PromptRefine,
		UpdatedAt:                time.Now().UTC(),
	}

	if err := domain.ValidateChatConfig(cfg); err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.Update(r.Context(), cfg); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, cfg)
}
