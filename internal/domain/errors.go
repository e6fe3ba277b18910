package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeInvalidState  = "INVALID_STATE"

	ErrCodeEmbedding     = "EMBEDDING_ERROR"
	ErrCodeRetrieval     = "RETRIEVAL_ERROR"
	ErrCodeToolExecution = "TOOL_EXECUTION_ERROR"
	ErrCodeProvider      = "PROVIDER_ERROR"
)

// Validation errors
var (
	ErrInvalidDocumentStatus = NewDomainError(ErrCodeValidation, "invalid document status")
	ErrInvalidSessionStatus  = NewDomainError(ErrCodeValidation, "invalid session status")
	ErrInvalidMessageRole    = NewDomainError(ErrCodeValidation, "invalid message role")
	ErrInvalidProvider       = NewDomainError(ErrCodeValidation, "unknown model provider")
	ErrMissingRequiredField  = NewDomainError(ErrCodeValidation, "missing required field")
)

// Not found errors
var (
	ErrDocumentNotFound = NewDomainError(ErrCodeNotFound, "document not found")
	ErrSessionNotFound  = NewDomainError(ErrCodeNotFound, "chat session not found")
)

// Chat errors
var (
	ErrSessionNotActive = NewDomainError(ErrCodeInvalidState, "chat session is not active")
)

// Authorization errors
var (
	ErrInvalidAPIKey = NewDomainError(ErrCodeUnauthorized, "invalid api key")
)

// Storage errors
var (
	ErrStorageOperationFail = NewDomainError(ErrCodeInternalError, "storage operation failed")
)

// EmbeddingError wraps a remote embedding failure. Fatal to the search
// that required it and never retried here.
func EmbeddingError(err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeEmbedding, "embedding generation failed", err)
}

// RetrievalError wraps a store-layer failure during semantic search.
func RetrievalError(err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeRetrieval, "semantic search failed", err)
}

// ProviderError wraps a model provider transport failure. Fatal to the
// turn; surfaced to the caller as a single error event.
func ProviderError(provider string, err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeProvider, fmt.Sprintf("provider %s request failed", provider), err)
}
