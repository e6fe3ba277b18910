package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/studium-labs/studium/internal/domain"
)

type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

type MockChunkStore struct {
	mock.Mock
}

func (m *MockChunkStore) SearchByEmbedding(ctx context.Context, embedding []float32, minSimilarity float64, limit int) ([]domain.SearchResult, error) {
	args := m.Called(ctx, embedding, minSimilarity, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SearchResult), args.Error(1)
}

func intPtr(n int) *int { return &n }

func defaultOpts() SearchOptions {
	return SearchOptions{DefaultTopK: 5, MaxTopK: 10}
}

func TestRetriever_Search_ThresholdThenTruncation(t *testing.T) {
	embedder := new(MockEmbedder)
	store := new(MockChunkStore)
	retriever := NewRetriever(embedder, store)

	ctx := context.Background()
	vec := []float32{0.1, 0.2}

	corpus := []domain.SearchResult{
		{ChunkID: "a", DocumentID: "d1", Similarity: 0.91, Filename: "calc.pdf", Page: intPtr(3)},
		{ChunkID: "b", DocumentID: "d1", Similarity: 0.80, Filename: "calc.pdf", Page: intPtr(7)},
		{ChunkID: "c", DocumentID: "d2", Similarity: 0.60, Filename: "algebra.pdf"},
	}

	embedder.On("GenerateEmbedding", ctx, "x").Return(vec, nil)
	store.On("SearchByEmbedding", ctx, vec, 0.65, 2).Return(corpus, nil)

	opts := defaultOpts()
	opts.TopK = 2
	opts.MinSimilarity = 0.65

	results, err := retriever.Search(ctx, "x", opts)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.Equal(t, "b", results[1].ChunkID)
	embedder.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestRetriever_Search_StrictThresholdReturnsFewer(t *testing.T) {
	embedder := new(MockEmbedder)
	store := new(MockChunkStore)
	retriever := NewRetriever(embedder, store)

	ctx := context.Background()
	vec := []float32{0.5}

	embedder.On("GenerateEmbedding", ctx, "q").Return(vec, nil)
	store.On("SearchByEmbedding", ctx, vec, 0.95, 5).Return([]domain.SearchResult{
		{ChunkID: "a", Similarity: 0.96},
		{ChunkID: "b", Similarity: 0.90},
	}, nil)

	opts := defaultOpts()
	opts.MinSimilarity = 0.95

	results, err := retriever.Search(ctx, "q", opts)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)
}

func TestRetriever_Search_NegativeThresholdDisablesFilter(t *testing.T) {
	embedder := new(MockEmbedder)
	store := new(MockChunkStore)
	retriever := NewRetriever(embedder, store)

	ctx := context.Background()
	vec := []float32{0.5}

	embedder.On("GenerateEmbedding", ctx, "q").Return(vec, nil)
	store.On("SearchByEmbedding", ctx, vec, -1.0, 5).Return([]domain.SearchResult{
		{ChunkID: "a", Similarity: 0.2},
		{ChunkID: "b", Similarity: 0.1},
	}, nil)

	opts := defaultOpts()
	opts.MinSimilarity = -1

	results, err := retriever.Search(ctx, "q", opts)

	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestRetriever_Search_TopKClamping(t *testing.T) {
	tests := []struct {
		name          string
		topK          int
		expectedLimit int
	}{
		{"ZeroUsesDefault", 0, 5},
		{"NegativeUsesDefault", -1, 5},
		{"AboveMaxClamped", 50, 10},
		{"WithinRange", 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embedder := new(MockEmbedder)
			store := new(MockChunkStore)
			retriever := NewRetriever(embedder, store)

			ctx := context.Background()
			vec := []float32{1}

			embedder.On("GenerateEmbedding", ctx, "q").Return(vec, nil)
			store.On("SearchByEmbedding", ctx, vec, 0.7, tt.expectedLimit).
				Return([]domain.SearchResult{}, nil)

			opts := defaultOpts()
			opts.TopK = tt.topK
			opts.MinSimilarity = 0.7

			_, err := retriever.Search(ctx, "q", opts)

			require.NoError(t, err)
			store.AssertExpectations(t)
		})
	}
}

func TestRetriever_Search_EmbeddingFailureIsFatal(t *testing.T) {
	embedder := new(MockEmbedder)
	store := new(MockChunkStore)
	retriever := NewRetriever(embedder, store)

	ctx := context.Background()
	embedder.On("GenerateEmbedding", ctx, "q").Return(nil, errors.New("401 unauthorized"))

	_, err := retriever.Search(ctx, "q", defaultOpts())

	require.Error(t, err)
	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeEmbedding, domainErr.Code)
	store.AssertNotCalled(t, "SearchByEmbedding")
}

func TestRetriever_Search_StoreFailureIsRetrievalError(t *testing.T) {
	embedder := new(MockEmbedder)
	store := new(MockChunkStore)
	retriever := NewRetriever(embedder, store)

	ctx := context.Background()
	vec := []float32{1}

	embedder.On("GenerateEmbedding", ctx, "q").Return(vec, nil)
	store.On("SearchByEmbedding", ctx, vec, mock.Anything, mock.Anything).
		Return(nil, errors.New("connection refused"))

	_, err := retriever.Search(ctx, "q", defaultOpts())

	require.Error(t, err)
	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeRetrieval, domainErr.Code)
}

func TestExtractSources_DeduplicatesByDocumentAndPage(t *testing.T) {
	results := []domain.SearchResult{
		{DocumentID: "d1", Filename: "calc.pdf", Page: intPtr(3)},
		{DocumentID: "d1", Filename: "calc.pdf", Page: intPtr(3)},
		{DocumentID: "d1", Filename: "calc.pdf", Page: intPtr(7)},
		{DocumentID: "d2", Filename: "algebra.pdf", Page: intPtr(3)},
		{DocumentID: "d1", Filename: "calc.pdf", Page: intPtr(3)},
	}

	sources := ExtractSources(results)

	require.Len(t, sources, 3)
	assert.Equal(t, "d1", sources[0].DocumentID)
	assert.Equal(t, 3, *sources[0].Page)
	assert.Equal(t, 7, *sources[1].Page)
	assert.Equal(t, "d2", sources[2].DocumentID)
}

func TestExtractSources_NilPageDistinctFromPageZero(t *testing.T) {
	results := []domain.SearchResult{
		{DocumentID: "d1", Filename: "notes.pdf"},
		{DocumentID: "d1", Filename: "notes.pdf", Page: intPtr(0)},
		{DocumentID: "d1", Filename: "notes.pdf"},
	}

	sources := ExtractSources(results)

	require.Len(t, sources, 2)
	assert.Nil(t, sources[0].Page)
	assert.NotNil(t, sources[1].Page)
}

func TestExtractSources_Empty(t *testing.T) {
	assert.Empty(t, ExtractSources(nil))
}
