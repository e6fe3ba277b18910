package domain

import (
	"fmt"
	"time"
)

// DocumentStatus represents the indexing state of an uploaded document
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusProcessed  DocumentStatus = "processed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Document represents an uploaded source document. Ingestion (PDF parsing
// and chunking) happens outside this service; documents arrive with chunk
// text already split and get embedded by the indexing worker.
type Document struct {
	ID          string
	Filename    string
	Title       string
	Status      DocumentStatus
	StorageKey  string // object key in the document bucket, empty when not stored
	ChunkCount  int
	RetryCount  int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProcessedAt *time.Time
}

// DocumentChunk is the unit of retrieval. Immutable after creation and
// removed in cascade with its owning document.
type DocumentChunk struct {
	ID         string
	DocumentID string
	ChunkIndex int
	Content    string
	Page       *int
	Embedding  []float32
	Metadata   map[string]string
	CreatedAt  time.Time
}

// SearchResult is a ranked retrieval match. Ephemeral, built per query.
type SearchResult struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
	Filename   string  `json:"filename"`
	Page       *int    `json:"page,omitempty"`
	ChunkIndex int     `json:"chunk_index"`
}

// Source is a deduplicated (document, page) citation attached to an
// assistant message.
type Source struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Page       *int   `json:"page,omitempty"`
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}

	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	if d.Filename == "" {
		return fmt.Errorf("document Filename is required")
	}

	if !isValidDocumentStatus(d.Status) {
		return fmt.Errorf("document Status is invalid: %s", d.Status)
	}

	return nil
}

// ValidateDocumentChunk validates a DocumentChunk instance
func ValidateDocumentChunk(c *DocumentChunk) error {
	if c == nil {
		return fmt.Errorf("chunk cannot be nil")
	}

	if c.ID == "" {
		return fmt.Errorf("chunk ID is required")
	}

	if c.DocumentID == "" {
		return fmt.Errorf("chunk DocumentID is required")
	}

	if c.ChunkIndex < 0 {
		return fmt.Errorf("chunk ChunkIndex must not be negative")
	}

	if c.Content == "" {
		return fmt.Errorf("chunk Content is required")
	}

	return nil
}

// isValidDocumentStatus checks if a DocumentStatus is valid
func isValidDocumentStatus(s DocumentStatus) bool {
	switch s {
	case DocumentStatusPending, DocumentStatusProcessing,
		DocumentStatusProcessed, DocumentStatusFailed:
		return true
	}
	return false
}
