package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/studium-labs/studium/internal/domain"
)

// MockJobProcessor is a mock implementation of JobProcessor
type MockJobProcessor struct {
	mock.Mock
}

func (m *MockJobProcessor) ProcessJobs(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockDocumentQueue is a mock implementation of DocumentQueue
type MockDocumentQueue struct {
	mock.Mock
}

func (m *MockDocumentQueue) ClaimPending(ctx context.Context, limit int) ([]*domain.Document, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Document), args.Error(1)
}

func (m *MockDocumentQueue) ResetForRetry(ctx context.Context, id, errMsg string) error {
	args := m.Called(ctx, id, errMsg)
	return args.Error(0)
}

func (m *MockDocumentQueue) MarkFailed(ctx context.Context, id, errMsg string) error {
	args := m.Called(ctx, id, errMsg)
	return args.Error(0)
}

// MockChunkReader is a mock implementation of ChunkReader
type MockChunkReader struct {
	mock.Mock
}

func (m *MockChunkReader) ListByDocument(ctx context.Context, documentID string) ([]domain.DocumentChunk, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DocumentChunk), args.Error(1)
}

// MockEmbedder is a mock implementation of Embedder
type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

// MockDocumentFinalizer is a mock implementation of DocumentFinalizer
type MockDocumentFinalizer struct {
	mock.Mock
}

func (m *MockDocumentFinalizer) MarkProcessed(ctx context.Context, id string, chunkCount int) error {
	args := m.Called(ctx, id, chunkCount)
	return args.Error(0)
}

// MockChunkWriter is a mock implementation of ChunkWriter
type MockChunkWriter struct {
	mock.Mock
}

func (m *MockChunkWriter) UpdateEmbeddings(ctx context.Context, chunks []domain.DocumentChunk) error {
	args := m.Called(ctx, chunks)
	return args.Error(0)
}

// fakeTxRunner runs the transaction function directly against the mocks
type fakeTxRunner struct {
	docs   *MockDocumentFinalizer
	chunks *MockChunkWriter
	err    error
}

func (r *fakeTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	if r.err != nil {
		return r.err
	}
	return fn(r)
}

func (r *fakeTxRunner) Documents() DocumentFinalizer { return r.docs }
func (r *fakeTxRunner) Chunks() ChunkWriter          { return r.chunks }

// TestWorker_StartStop tests the worker start and stop functionality
func TestWorker_StartStop(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker(mockProcessor, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start worker in goroutine
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	// Let it run for a bit
	time.Sleep(250 * time.Millisecond)

	// Stop worker
	worker.Stop()
	wg.Wait()

	// Verify ProcessJobs was called at least once
	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

// TestWorker_ContextCancellation tests worker stops on context cancellation
func TestWorker_ContextCancellation(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker(mockProcessor, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())

	// Start worker in goroutine
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	// Let it run for a bit
	time.Sleep(150 * time.Millisecond)

	// Cancel context
	cancel()
	wg.Wait()

	// Verify ProcessJobs was called
	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

func newIndexWorkerFixture() (*IndexWorker, *MockDocumentQueue, *MockChunkReader, *MockEmbedder, *fakeTxRunner) {
	queue := new(MockDocumentQueue)
	chunks := new(MockChunkReader)
	embedder := new(MockEmbedder)
	tx := &fakeTxRunner{docs: new(MockDocumentFinalizer), chunks: new(MockChunkWriter)}
	worker := NewIndexWorker(queue, chunks, embedder, tx)
	return worker, queue, chunks, embedder, tx
}

// TestIndexWorker_ProcessJobs_NoPendingDocuments tests when nothing is queued
func TestIndexWorker_ProcessJobs_NoPendingDocuments(t *testing.T) {
	worker, queue, _, embedder, _ := newIndexWorkerFixture()

	queue.On("ClaimPending", mock.Anything, claimBatchSize).Return([]*domain.Document{}, nil)

	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	queue.AssertExpectations(t)
	embedder.AssertNotCalled(t, "GenerateEmbeddings", mock.Anything, mock.Anything)
}

// TestIndexWorker_ProcessJobs_Success tests successful document indexing
func TestIndexWorker_ProcessJobs_Success(t *testing.T) {
	worker, queue, chunks, embedder, tx := newIndexWorkerFixture()

	doc := &domain.Document{ID: "doc-1", Filename: "notes.pdf", Status: domain.DocumentStatusProcessing}
	docChunks := []domain.DocumentChunk{
		{ID: "chunk-1", DocumentID: "doc-1", ChunkIndex: 0, Content: "First chunk."},
		{ID: "chunk-2", DocumentID: "doc-1", ChunkIndex: 1, Content: "Second chunk."},
	}

	queue.On("ClaimPending", mock.Anything, claimBatchSize).Return([]*domain.Document{doc}, nil)
	chunks.On("ListByDocument", mock.Anything, "doc-1").Return(docChunks, nil)
	embedder.On("GenerateEmbeddings", mock.Anything, []string{"First chunk.", "Second chunk."}).
		Return([][]float32{{0.1, 0.2}, {0.3, 0.4}}, nil)
	tx.chunks.On("UpdateEmbeddings", mock.Anything, mock.MatchedBy(func(cs []domain.DocumentChunk) bool {
		return len(cs) == 2 && len(cs[0].Embedding) == 2 && len(cs[1].Embedding) == 2
	})).Return(nil)
	tx.docs.On("MarkProcessed", mock.Anything, "doc-1", 2).Return(nil)

	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	queue.AssertExpectations(t)
	chunks.AssertExpectations(t)
	embedder.AssertExpectations(t)
	tx.docs.AssertExpectations(t)
	tx.chunks.AssertExpectations(t)
}

// TestIndexWorker_ProcessJobs_FailureWithRetry tests requeueing on failure
func TestIndexWorker_ProcessJobs_FailureWithRetry(t *testing.T) {
	worker, queue, chunks, embedder, _ := newIndexWorkerFixture()

	doc := &domain.Document{ID: "doc-1", Filename: "notes.pdf", Status: domain.DocumentStatusProcessing, RetryCount: 0}
	docChunks := []domain.DocumentChunk{{ID: "chunk-1", DocumentID: "doc-1", Content: "First chunk."}}

	queue.On("ClaimPending", mock.Anything, claimBatchSize).Return([]*domain.Document{doc}, nil)
	chunks.On("ListByDocument", mock.Anything, "doc-1").Return(docChunks, nil)
	embedder.On("GenerateEmbeddings", mock.Anything, mock.Anything).Return(nil, errors.New("embedding failed"))
	queue.On("ResetForRetry", mock.Anything, "doc-1", mock.MatchedBy(func(msg string) bool {
		return msg != ""
	})).Return(nil)

	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	queue.AssertExpectations(t)
	embedder.AssertExpectations(t)
}

// TestIndexWorker_ProcessJobs_MaxRetriesExceeded tests parking after max retries
func TestIndexWorker_ProcessJobs_MaxRetriesExceeded(t *testing.T) {
	worker, queue, chunks, embedder, _ := newIndexWorkerFixture()

	doc := &domain.Document{ID: "doc-1", Filename: "notes.pdf", Status: domain.DocumentStatusProcessing, RetryCount: 2}
	docChunks := []domain.DocumentChunk{{ID: "chunk-1", DocumentID: "doc-1", Content: "First chunk."}}

	queue.On("ClaimPending", mock.Anything, claimBatchSize).Return([]*domain.Document{doc}, nil)
	chunks.On("ListByDocument", mock.Anything, "doc-1").Return(docChunks, nil)
	embedder.On("GenerateEmbeddings", mock.Anything, mock.Anything).Return(nil, errors.New("embedding failed"))
	queue.On("MarkFailed", mock.Anything, "doc-1", mock.MatchedBy(func(msg string) bool {
		return msg != ""
	})).Return(nil)

	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	queue.AssertExpectations(t)
}

// TestIndexWorker_ProcessJobs_NoChunks tests a document without chunk rows
func TestIndexWorker_ProcessJobs_NoChunks(t *testing.T) {
	worker, queue, chunks, embedder, _ := newIndexWorkerFixture()

	doc := &domain.Document{ID: "doc-1", Filename: "notes.pdf", Status: domain.DocumentStatusProcessing, RetryCount: 2}

	queue.On("ClaimPending", mock.Anything, claimBatchSize).Return([]*domain.Document{doc}, nil)
	chunks.On("ListByDocument", mock.Anything, "doc-1").Return([]domain.DocumentChunk{}, nil)
	queue.On("MarkFailed", mock.Anything, "doc-1", mock.MatchedBy(func(msg string) bool {
		return msg != ""
	})).Return(nil)

	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	queue.AssertExpectations(t)
	embedder.AssertNotCalled(t, "GenerateEmbeddings", mock.Anything, mock.Anything)
}

// TestIndexWorker_ProcessJobs_Batching tests that large documents embed in batches
func TestIndexWorker_ProcessJobs_Batching(t *testing.T) {
	worker, queue, chunks, embedder, tx := newIndexWorkerFixture()

	doc := &domain.Document{ID: "doc-1", Filename: "big.pdf", Status: domain.DocumentStatusProcessing}
	docChunks := make([]domain.DocumentChunk, embedBatchSize+1)
	for i := range docChunks {
		docChunks[i] = domain.DocumentChunk{ID: "chunk", DocumentID: "doc-1", ChunkIndex: i, Content: "text"}
	}

	firstBatch := make([][]float32, embedBatchSize)
	for i := range firstBatch {
		firstBatch[i] = []float32{0.1}
	}

	queue.On("ClaimPending", mock.Anything, claimBatchSize).Return([]*domain.Document{doc}, nil)
	chunks.On("ListByDocument", mock.Anything, "doc-1").Return(docChunks, nil)
	embedder.On("GenerateEmbeddings", mock.Anything, mock.MatchedBy(func(texts []string) bool {
		return len(texts) == embedBatchSize
	})).Return(firstBatch, nil).Once()
	embedder.On("GenerateEmbeddings", mock.Anything, mock.MatchedBy(func(texts []string) bool {
		return len(texts) == 1
	})).Return([][]float32{{0.2}}, nil).Once()
	tx.chunks.On("UpdateEmbeddings", mock.Anything, mock.Anything).Return(nil)
	tx.docs.On("MarkProcessed", mock.Anything, "doc-1", embedBatchSize+1).Return(nil)

	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	embedder.AssertExpectations(t)
	tx.docs.AssertExpectations(t)
}

// TestIndexWorker_ProcessJobs_ClaimError tests claim failure handling
func TestIndexWorker_ProcessJobs_ClaimError(t *testing.T) {
	worker, queue, _, _, _ := newIndexWorkerFixture()

	queue.On("ClaimPending", mock.Anything, claimBatchSize).Return(nil, errors.New("database error"))

	err := worker.ProcessJobs(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to claim pending documents")
	queue.AssertExpectations(t)
}
