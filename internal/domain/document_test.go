package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDocumentStatusConstants(t *testing.T) {
	tests := []struct {
		name     string
		status   DocumentStatus
		expected string
	}{
		{"Pending", DocumentStatusPending, "pending"},
		{"Processing", DocumentStatusProcessing, "processing"},
		{"Processed", DocumentStatusProcessed, "processed"},
		{"Failed", DocumentStatusFailed, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.status))
		})
	}
}

func TestValidateDocument(t *testing.T) {
	valid := func() *Document {
		return &Document{
			ID:        "d1",
			Filename:  "algebra.pdf",
			Status:    DocumentStatusPending,
			CreatedAt: time.Now(),
		}
	}

	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, ValidateDocument(valid()))
	})

	t.Run("Nil", func(t *testing.T) {
		assert.Error(t, ValidateDocument(nil))
	})

	t.Run("MissingFilename", func(t *testing.T) {
		d := valid()
		d.Filename = ""
		assert.Error(t, ValidateDocument(d))
	})

	t.Run("InvalidStatus", func(t *testing.T) {
		d := valid()
		d.Status = DocumentStatus("queued")
		assert.Error(t, ValidateDocument(d))
	})
}

func TestValidateDocumentChunk(t *testing.T) {
	valid := func() *DocumentChunk {
		return &DocumentChunk{
			ID:         "c1",
			DocumentID: "d1",
			ChunkIndex: 0,
			Content:    "a bounded slice of the source text",
		}
	}

	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, ValidateDocumentChunk(valid()))
	})

	t.Run("NegativeIndex", func(t *testing.T) {
		c := valid()
		c.ChunkIndex = -1
		assert.Error(t, ValidateDocumentChunk(c))
	})

	t.Run("EmptyContent", func(t *testing.T) {
		c := valid()
		c.Content = ""
		assert.Error(t, ValidateDocumentChunk(c))
	})
}
