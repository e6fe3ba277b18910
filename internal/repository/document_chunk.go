package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/studium-labs/studium/internal/domain"
)

// DocumentChunkRepository handles persistence of chunk text and embeddings.
type DocumentChunkRepository struct {
	db dbtx
}

func NewDocumentChunkRepository(pool *pgxpool.Pool) *DocumentChunkRepository {
	return &DocumentChunkRepository{db: pool}
}

func NewDocumentChunkRepositoryWithTx(tx dbtx) *DocumentChunkRepository {
	return &DocumentChunkRepository{db: tx}
}

// InsertChunks stores chunk rows for a document. Embeddings may be nil; the
// indexing worker fills them in later.
func (r *DocumentChunkRepository) InsertChunks(ctx context.Context, chunks []domain.DocumentChunk) error {
	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		var metadata []byte
		if len(c.Metadata) > 0 {
			var err error
			metadata, err = json.Marshal(c.Metadata)
			if err != nil {
				return err
			}
		}
		_, err := r.db.Exec(ctx,
			`INSERT INTO document_chunks (id, document_id, chunk_index, content, page, embedding, metadata, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			c.ID, c.DocumentID, c.ChunkIndex, c.Content, c.Page, nullableVector(c.Embedding), metadata, createdAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// ListByDocument returns a document's chunks in chunk order, without
// embeddings.
func (r *DocumentChunkRepository) ListByDocument(ctx context.Context, documentID string) ([]domain.DocumentChunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, document_id, chunk_index, content, page, metadata, created_at
		 FROM document_chunks
		 WHERE document_id = $1
		 ORDER BY chunk_index ASC`,
		documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

// UpdateEmbeddings writes computed vectors back onto chunk rows.
func (r *DocumentChunkRepository) UpdateEmbeddings(ctx context.Context, chunks []domain.DocumentChunk) error {
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		_, err := r.db.Exec(ctx,
			`UPDATE document_chunks SET embedding = $1 WHERE id = $2`,
			pgvector.NewVector(c.Embedding), c.ID,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// SearchByEmbedding ranks chunks of fully indexed documents by cosine
// similarity. A negative minSimilarity disables the threshold filter. Ties
// break on chunk_index ascending so rankings are stable.
func (r *DocumentChunkRepository) SearchByEmbedding(ctx context.Context, embedding []float32, minSimilarity float64, limit int) ([]domain.SearchResult, error) {
	if limit <= 0 {
		limit = domain.DefaultTopK
	}

	vec := pgvector.NewVector(embedding)

	rows, err := r.db.Query(ctx,
		`SELECT c.id, c.document_id, c.content, c.chunk_index, c.page, d.filename,
		        1 - (c.embedding <=> $1) AS similarity
		 FROM document_chunks c
		 JOIN documents d ON d.id = c.document_id
		 WHERE d.status = $2
		   AND c.embedding IS NOT NULL
		   AND ($3 < 0 OR 1 - (c.embedding <=> $1) >= $3)
		 ORDER BY similarity DESC, c.chunk_index ASC
		 LIMIT $4`,
		vec, domain.DocumentStatusProcessed, minSimilarity, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.SearchResult, 0)
	for rows.Next() {
		var result domain.SearchResult
		if err := rows.Scan(&result.ChunkID, &result.DocumentID, &result.Content, &result.ChunkIndex, &result.Page, &result.Filename, &result.Similarity); err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// DeleteByDocument removes all chunks of a document.
func (r *DocumentChunkRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	return err
}

func nullableVector(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}

func scanChunkRows(rows pgx.Rows) ([]domain.DocumentChunk, error) {
	var chunks []domain.DocumentChunk
	for rows.Next() {
		var c domain.DocumentChunk
		var metadata []byte
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content, &c.Page, &metadata, &c.CreatedAt); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
				return nil, err
			}
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
