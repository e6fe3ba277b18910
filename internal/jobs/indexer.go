package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/studium-labs/studium/internal/domain"
	"github.com/studium-labs/studium/internal/telemetry"
)

const (
	// MaxRetries is the maximum number of indexing attempts per document
	MaxRetries = 3

	// embedBatchSize caps how many chunk texts go into one embedding request
	embedBatchSize = 64

	// claimBatchSize caps how many documents one poll cycle picks up
	claimBatchSize = 10
)

// DocumentQueue claims and transitions documents through the indexing
// lifecycle
type DocumentQueue interface {
	ClaimPending(ctx context.Context, limit int) ([]*domain.Document, error)
	ResetForRetry(ctx context.Context, id, errMsg string) error
	MarkFailed(ctx context.Context, id, errMsg string) error
}

// ChunkReader loads a document's chunk texts
type ChunkReader interface {
	ListByDocument(ctx context.Context, documentID string) ([]domain.DocumentChunk, error)
}

// Embedder turns a batch of chunk texts into vectors
type Embedder interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// DocumentFinalizer marks a document fully indexed
type DocumentFinalizer interface {
	MarkProcessed(ctx context.Context, id string, chunkCount int) error
}

// ChunkWriter stores computed embeddings on chunk rows
type ChunkWriter interface {
	UpdateEmbeddings(ctx context.Context, chunks []domain.DocumentChunk) error
}

// TxRepositories groups the repositories available inside one transaction
type TxRepositories interface {
	Documents() DocumentFinalizer
	Chunks() ChunkWriter
}

// TxRunner runs a function within a database transaction
type TxRunner interface {
	WithTx(ctx context.Context, fn func(repos TxRepositories) error) error
}

// IndexWorker embeds the chunks of pending documents. Embeddings and the
// processed status land in one transaction, so a document is either fully
// searchable or not at all.
type IndexWorker struct {
	queue    DocumentQueue
	chunks   ChunkReader
	embedder Embedder
	tx       TxRunner
}

// NewIndexWorker creates a new IndexWorker instance
func NewIndexWorker(queue DocumentQueue, chunks ChunkReader, embedder Embedder, tx TxRunner) *IndexWorker {
	return &IndexWorker{
		queue:    queue,
		chunks:   chunks,
		embedder: embedder,
		tx:       tx,
	}
}

// ProcessJobs implements the JobProcessor interface
func (w *IndexWorker) ProcessJobs(ctx context.Context) error {
	docs, err := w.queue.ClaimPending(ctx, claimBatchSize)
	if err != nil {
		return fmt.Errorf("failed to claim pending documents: %w", err)
	}

	if len(docs) == 0 {
		return nil
	}

	log.Printf("Indexing %d pending documents", len(docs))

	for _, doc := range docs {
		if err := w.indexDocument(ctx, doc); err != nil {
			log.Printf("Error indexing document %s: %v", doc.ID, err)
		}
	}

	return nil
}

func (w *IndexWorker) indexDocument(ctx context.Context, doc *domain.Document) error {
	ctx, span := telemetry.StartSpan(ctx, "jobs.index_document", telemetry.SpanAttributes{
		DocumentID: doc.ID,
		Operation:  "index_document",
	})
	defer span.End()

	chunks, err := w.chunks.ListByDocument(ctx, doc.ID)
	if err != nil {
		return w.handleFailure(ctx, doc, fmt.Errorf("failed to load chunks: %w", err))
	}
	if len(chunks) == 0 {
		return w.handleFailure(ctx, doc, fmt.Errorf("document %s has no chunks", doc.ID))
	}

	if err := w.embedChunks(ctx, chunks); err != nil {
		return w.handleFailure(ctx, doc, err)
	}

	err = w.tx.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Chunks().UpdateEmbeddings(ctx, chunks); err != nil {
			return err
		}
		return repos.Documents().MarkProcessed(ctx, doc.ID, len(chunks))
	})
	if err != nil {
		return w.handleFailure(ctx, doc, fmt.Errorf("failed to store embeddings: %w", err))
	}

	log.Printf("Document %s indexed with %d chunks", doc.ID, len(chunks))
	return nil
}

// embedChunks fills in chunk embeddings batch by batch
func (w *IndexWorker) embedChunks(ctx context.Context, chunks []domain.DocumentChunk) error {
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}

		embeddings, err := w.embedder.GenerateEmbeddings(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed chunks %d-%d: %w", start, end, err)
		}
		if len(embeddings) != end-start {
			return fmt.Errorf("embedding count mismatch: got %d, want %d", len(embeddings), end-start)
		}

		for i := range embeddings {
			chunks[start+i].Embedding = embeddings[i]
		}
	}
	return nil
}

// handleFailure retries a failed document until MaxRetries, then parks it
// as failed
func (w *IndexWorker) handleFailure(ctx context.Context, doc *domain.Document, docErr error) error {
	log.Printf("Indexing document %s failed: %v", doc.ID, docErr)
	telemetry.CaptureError(ctx, docErr)

	if doc.RetryCount+1 >= MaxRetries {
		log.Printf("Document %s exceeded max retries (%d), marking as failed", doc.ID, MaxRetries)
		errMsg := fmt.Sprintf("max retries exceeded: %v", docErr)
		if err := w.queue.MarkFailed(ctx, doc.ID, errMsg); err != nil {
			return fmt.Errorf("failed to mark document as failed: %w", err)
		}
		return nil
	}

	log.Printf("Document %s will be retried (attempt %d/%d)", doc.ID, doc.RetryCount+1, MaxRetries)
	errMsg := fmt.Sprintf("retry %d: %v", doc.RetryCount+1, docErr)
	if err := w.queue.ResetForRetry(ctx, doc.ID, errMsg); err != nil {
		return fmt.Errorf("failed to requeue document: %w", err)
	}

	return nil
}
