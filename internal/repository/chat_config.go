package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studium-labs/studium/internal/domain"
)

// ChatConfigRepository manages the single-row chat configuration.
type ChatConfigRepository struct {
	db dbtx
}

func NewChatConfigRepository(pool *pgxpool.Pool) *ChatConfigRepository {
	return &ChatConfigRepository{db: pool}
}

// Get returns the stored configuration, or the defaults when no row has
// been written yet.
func (r *ChatConfigRepository) Get(ctx context.Context) (*domain.ChatConfig, error) {
	var cfg domain.ChatConfig
	err := r.db.QueryRow(ctx,
		`SELECT default_top_k, max_top_k, similarity_threshold, tool_calling_enabled,
		        tool_calling_max_iterations, tool_similarity_relaxation,
		        include_rag_instruction, prompt_refine, updated_at
		 FROM chat_config WHERE id = 1`,
	).Scan(&cfg.DefaultTopK, &cfg.MaxTopK, &cfg.SimilarityThreshold, &cfg.ToolCallingEnabled,
		&cfg.ToolCallingMaxIterations, &cfg.ToolSimilarityRelaxation,
		&cfg.IncludeRAGInstruction, &cfg.PromptRefine, &cfg.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DefaultChatConfig(), nil
		}
		return nil, err
	}
	return &cfg, nil
}

// Update replaces the configuration row, creating it on first write.
func (r *ChatConfigRepository) Update(ctx context.Context, cfg *domain.ChatConfig) error {
	cfg.UpdatedAt = time.Now().UTC()
	_, err := r.db.Exec(ctx,
		`INSERT INTO chat_config (id, default_top_k, max_top_k, similarity_threshold, tool_calling_enabled,
		                          tool_calling_max_iterations, tool_similarity_relaxation,
		                          include_rag_instruction, prompt_refine, updated_at)
		 VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		   default_top_k = EXCLUDED.default_top_k,
		   max_top_k = EXCLUDED.max_top_k,
		   similarity_threshold = EXCLUDED.similarity_threshold,
		   tool_calling_enabled = EXCLUDED.tool_calling_enabled,
		   tool_calling_max_iterations = EXCLUDED.tool_calling_max_iterations,
		   tool_similarity_relaxation = EXCLUDED.tool_similarity_relaxation,
		   include_rag_instruction = EXCLUDED.include_rag_instruction,
		   prompt_refine = EXCLUDED.prompt_refine,
		   updated_at = EXCLUDED.updated_at`,
		cfg.DefaultTopK, cfg.MaxTopK, cfg.SimilarityThreshold, cfg.ToolCallingEnabled,
		cfg.ToolCallingMaxIterations, cfg.ToolSimilarityRelaxation,
		cfg.IncludeRAGInstruction, cfg.PromptRefine, cfg.UpdatedAt,
	)
	return err
}
