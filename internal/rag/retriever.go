// Package rag implements semantic retrieval over indexed document chunks.
package rag

import (
	"context"

	"github.com/studium-labs/studium/internal/domain"
	"github.com/studium-labs/studium/internal/telemetry"
)

// EmbeddingClient turns query text into a fixed-dimension vector
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// ChunkStore ranks indexed chunks against a query embedding. Results come
// back ordered by similarity descending, chunk_index ascending, restricted
// to chunks of fully indexed documents.
type ChunkStore interface {
	SearchByEmbedding(ctx context.Context, embedding []float32, minSimilarity float64, limit int) ([]domain.SearchResult, error)
}

// SearchOptions bounds one retrieval call
type SearchOptions struct {
	// TopK is the requested result count; zero selects DefaultTopK
	TopK int
	// MinSimilarity filters results below the threshold; negative disables
	// the filter
	MinSimilarity float64
	// DefaultTopK and MaxTopK come from the chat configuration singleton
	DefaultTopK int
	MaxTopK     int
}

// Retriever performs read-only semantic search. Embedding and store
// failures are both fatal to the call and never retried here.
type Retriever struct {
	embedder EmbeddingClient
	store    ChunkStore
}

func NewRetriever(embedder EmbeddingClient, store ChunkStore) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Search embeds the query and returns ranked matches, at most TopK, all at
// or above MinSimilarity, ordered by similarity descending. The threshold
// applies before truncation, so a strict threshold can return fewer than
// TopK results.
func (r *Retriever) Search(ctx context.Context, query string, opts SearchOptions) ([]domain.SearchResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "rag.search", telemetry.SpanAttributes{
		Operation: "semantic_search",
	})
	defer span.End()

	topK := clampTopK(opts)

	embedding, err := r.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		span.SetError(err)
		return nil, domain.EmbeddingError(err)
	}

	candidates, err := r.store.SearchByEmbedding(ctx, embedding, opts.MinSimilarity, topK)
	if err != nil {
		span.SetError(err)
		return nil, domain.RetrievalError(err)
	}

	results := make([]domain.SearchResult, 0, topK)
	for _, c := range candidates {
		if opts.MinSimilarity >= 0 && c.Similarity < opts.MinSimilarity {
			continue
		}
		results = append(results, c)
		if len(results) == topK {
			break
		}
	}

	return results, nil
}

// ExtractSources deduplicates results into citations by (document, page),
// preserving first-seen order so each page is cited once.
func ExtractSources(results []domain.SearchResult) []domain.Source {
	type key struct {
		documentID string
		page       int
		hasPage    bool
	}

	seen := make(map[key]struct{}, len(results))
	sources := make([]domain.Source, 0, len(results))

	for _, r := range results {
		k := key{documentID: r.DocumentID}
		if r.Page != nil {
			k.page = *r.Page
			k.hasPage = true
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		sources = append(sources, domain.Source{
			DocumentID: r.DocumentID,
			Filename:   r.Filename,
			Page:       r.Page,
		})
	}

	return sources
}

func clampTopK(opts SearchOptions) int {
	topK := opts.TopK
	if topK <= 0 {
		topK = opts.DefaultTopK
	}
	if topK < 1 {
		topK = 1
	}
	maxTopK := opts.MaxTopK
	if maxTopK < 1 {
		maxTopK = domain.DefaultMaxTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}
	return topK
}
