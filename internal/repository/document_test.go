//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studium-labs/studium/internal/domain"
	"github.com/studium-labs/studium/internal/testutil"
)

func newStoredDocument() *domain.Document {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Document{
		ID:        uuid.NewString(),
		Filename:  "linear-algebra.pdf",
		Title:     "Linear Algebra Notes",
		Status:    domain.DocumentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func makeStoredEmbedding(dims int, scale float32) []float32 {
	embedding := make([]float32, dims)
	for i := range embedding {
		embedding[i] = scale / float32(i+1)
	}
	return embedding
}

func TestDocumentRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewDocumentRepository(pool)

	doc := newStoredDocument()
	require.NoError(t, repo.Create(ctx, doc))

	retrieved, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, retrieved.ID)
	assert.Equal(t, doc.Filename, retrieved.Filename)
	assert.Equal(t, domain.DocumentStatusPending, retrieved.Status)
	assert.Nil(t, retrieved.ProcessedAt)
}

func TestDocumentRepository_GetByID_NotFound(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewDocumentRepository(pool)

	_, err := repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestDocumentRepository_ClaimPending(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewDocumentRepository(pool)

	first := newStoredDocument()
	second := newStoredDocument()
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	claimed, err := repo.ClaimPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, first.ID, claimed[0].ID)
	assert.Equal(t, domain.DocumentStatusProcessing, claimed[0].Status)

	// Claimed documents are no longer pending
	remaining, err := repo.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, second.ID, remaining[0].ID)
}

func TestDocumentRepository_StatusTransitions(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewDocumentRepository(pool)

	doc := newStoredDocument()
	require.NoError(t, repo.Create(ctx, doc))

	require.NoError(t, repo.ResetForRetry(ctx, doc.ID, "transient failure"))
	retried, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatusPending, retried.Status)
	assert.Equal(t, 1, retried.RetryCount)
	assert.Equal(t, "transient failure", retried.LastError)

	require.NoError(t, repo.MarkProcessed(ctx, doc.ID, 7))
	processed, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatusProcessed, processed.Status)
	assert.Equal(t, 7, processed.ChunkCount)
	assert.Empty(t, processed.LastError)
	require.NotNil(t, processed.ProcessedAt)

	require.NoError(t, repo.MarkFailed(ctx, doc.ID, "gave up"))
	failed, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatusFailed, failed.Status)
	assert.Equal(t, "gave up", failed.LastError)
}

func TestDocumentChunkRepository_SearchByEmbedding(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	docRepo := NewDocumentRepository(pool)
	chunkRepo := NewDocumentChunkRepository(pool)

	doc := newStoredDocument()
	require.NoError(t, docRepo.Create(ctx, doc))

	page := 1
	query := makeStoredEmbedding(1536, 1.0)
	chunks := []domain.DocumentChunk{
		{ID: uuid.NewString(), DocumentID: doc.ID, ChunkIndex: 0, Content: "Exact match.", Page: &page, Embedding: makeStoredEmbedding(1536, 1.0)},
		{ID: uuid.NewString(), DocumentID: doc.ID, ChunkIndex: 1, Content: "Weaker match.", Page: &page, Embedding: makeStoredEmbedding(1536, -1.0)},
		{ID: uuid.NewString(), DocumentID: doc.ID, ChunkIndex: 2, Content: "Not yet embedded."},
	}
	require.NoError(t, chunkRepo.InsertChunks(ctx, chunks))

	// Unprocessed documents never surface in search
	results, err := chunkRepo.SearchByEmbedding(ctx, query, -1, 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	require.NoError(t, docRepo.MarkProcessed(ctx, doc.ID, len(chunks)))

	results, err = chunkRepo.SearchByEmbedding(ctx, query, -1, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Exact match.", results[0].Content)
	assert.Equal(t, doc.Filename, results[0].Filename)
	assert.InDelta(t, 1.0, results[0].Similarity, 0.001)
	assert.Greater(t, results[0].Similarity, results[1].Similarity)

	// The threshold hides the opposite-direction chunk
	results, err = chunkRepo.SearchByEmbedding(ctx, query, 0.5, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Exact match.", results[0].Content)
}

func TestDocumentChunkRepository_UpdateEmbeddings(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	docRepo := NewDocumentRepository(pool)
	chunkRepo := NewDocumentChunkRepository(pool)

	doc := newStoredDocument()
	require.NoError(t, docRepo.Create(ctx, doc))

	chunk := domain.DocumentChunk{ID: uuid.NewString(), DocumentID: doc.ID, ChunkIndex: 0, Content: "Pending chunk."}
	require.NoError(t, chunkRepo.InsertChunks(ctx, []domain.DocumentChunk{chunk}))

	chunk.Embedding = makeStoredEmbedding(1536, 1.0)
	require.NoError(t, chunkRepo.UpdateEmbeddings(ctx, []domain.DocumentChunk{chunk}))
	require.NoError(t, docRepo.MarkProcessed(ctx, doc.ID, 1))

	results, err := chunkRepo.SearchByEmbedding(ctx, chunk.Embedding, -1, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, chunk.ID, results[0].ChunkID)
}

func TestDocumentRepository_Delete_CascadesChunks(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	docRepo := NewDocumentRepository(pool)
	chunkRepo := NewDocumentChunkRepository(pool)

	doc := newStoredDocument()
	require.NoError(t, docRepo.Create(ctx, doc))
	require.NoError(t, chunkRepo.InsertChunks(ctx, []domain.DocumentChunk{
		{ID: uuid.NewString(), DocumentID: doc.ID, ChunkIndex: 0, Content: "Chunk."},
	}))

	require.NoError(t, docRepo.Delete(ctx, doc.ID))

	chunks, err := chunkRepo.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
