package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studium-labs/studium/internal/domain"
)

const documentColumns = `id, filename, title, status, storage_key, chunk_count, retry_count, last_error, created_at, updated_at, processed_at`

type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func NewDocumentRepositoryWithTx(tx pgx.Tx) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

func (r *DocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO documents (id, filename, title, status, storage_key, chunk_count, retry_count, last_error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		d.ID, d.Filename, d.Title, d.Status, nullableString(d.StorageKey), d.ChunkCount, d.RetryCount, nullableString(d.LastError), d.CreatedAt, d.UpdatedAt,
	)
	return err
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`,
		id,
	)
	d, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	return d, nil
}

func (r *DocumentRepository) List(ctx context.Context) ([]*domain.Document, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocumentRows(rows)
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// ClaimPending atomically moves up to limit pending documents to processing
// and returns them. Concurrent workers skip each other's claims.
func (r *DocumentRepository) ClaimPending(ctx context.Context, limit int) ([]*domain.Document, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.Query(ctx,
		`UPDATE documents SET status = $1, updated_at = $2
		 WHERE id IN (
			SELECT id FROM documents
			WHERE status = $3
			ORDER BY created_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+documentColumns,
		domain.DocumentStatusProcessing, time.Now().UTC(), domain.DocumentStatusPending, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocumentRows(rows)
}

// MarkProcessed finalizes a successfully indexed document.
func (r *DocumentRepository) MarkProcessed(ctx context.Context, id string, chunkCount int) error {
	now := time.Now().UTC()
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents
		 SET status = $1, chunk_count = $2, last_error = NULL, processed_at = $3, updated_at = $3
		 WHERE id = $4`,
		domain.DocumentStatusProcessed, chunkCount, now, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// MarkFailed terminates indexing for a document that exhausted its retries.
func (r *DocumentRepository) MarkFailed(ctx context.Context, id, errMsg string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents SET status = $1, last_error = $2, updated_at = $3 WHERE id = $4`,
		domain.DocumentStatusFailed, errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// ResetForRetry returns a document to the pending queue and counts the attempt.
func (r *DocumentRepository) ResetForRetry(ctx context.Context, id, errMsg string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents
		 SET status = $1, retry_count = retry_count + 1, last_error = $2, updated_at = $3
		 WHERE id = $4`,
		domain.DocumentStatusPending, errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var d domain.Document
	var storageKey, lastError *string
	if err := row.Scan(&d.ID, &d.Filename, &d.Title, &d.Status, &storageKey, &d.ChunkCount, &d.RetryCount, &lastError, &d.CreatedAt, &d.UpdatedAt, &d.ProcessedAt); err != nil {
		return nil, err
	}
	if storageKey != nil {
		d.StorageKey = *storageKey
	}
	if lastError != nil {
		d.LastError = *lastError
	}
	return &d, nil
}

func scanDocumentRows(rows pgx.Rows) ([]*domain.Document, error) {
	var results []*domain.Document
	for rows.Next() {
		var d domain.Document
		var storageKey, lastError *string
		if err := rows.Scan(&d.ID, &d.Filename, &d.Title, &d.Status, &storageKey, &d.ChunkCount, &d.RetryCount, &lastError, &d.CreatedAt, &d.UpdatedAt, &d.ProcessedAt); err != nil {
			return nil, err
		}
		if storageKey != nil {
			d.StorageKey = *storageKey
		}
		if lastError != nil {
			d.LastError = *lastError
		}
		results = append(results, &d)
	}
	return results, rows.Err()
}
