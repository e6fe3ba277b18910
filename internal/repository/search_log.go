package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studium-labs/studium/internal/rag"
)

// SearchLogRepository stores search logs for relevance evaluation.
type SearchLogRepository struct {
	pool *pgxpool.Pool
}

func NewSearchLogRepository(pool *pgxpool.Pool) *SearchLogRepository {
	return &SearchLogRepository{pool: pool}
}

func (r *SearchLogRepository) CreateSearchLog(ctx context.Context, entry rag.SearchLogEntry) (string, error) {
	resultsJSON, err := json.Marshal(entry.Results)
	if err != nil {
		return "", err
	}

	var id string
	err = r.pool.QueryRow(ctx,
		`INSERT INTO search_logs (query, top_k, min_similarity, results, result_count, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		entry.Query,
		entry.TopK,
		entry.MinSimilarity,
		resultsJSON,
		len(entry.Results),
		entry.DurationMs,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}
