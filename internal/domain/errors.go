package domain

import (
	"errors"
	"fmt"
)

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

// Is matches sentinel domain errors by code and message so wrapped copies
// still compare equal with errors.Is.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
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
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
	ErrCodeExtraction       = "EXTRACTION_ERROR"
	ErrCodeEmbedding        = "EMBEDDING_ERROR"
	ErrCodeStorage          = "STORAGE_ERROR"
	ErrCodeProviderSend     = "PROVIDER_SEND_ERROR"
	ErrCodeExternalSource   = "EXTERNAL_SOURCE_ERROR"
)

// CodeOf returns the code of the first DomainError in err's chain, or "".
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsCode reports whether err carries a DomainError with the given code.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}

// ExtractionError wraps a decode or parse failure for a document.
func ExtractionError(message string, err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeExtraction, message, err)
}

// EmbeddingError wraps a failed or malformed embedding provider call.
func EmbeddingError(message string, err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeEmbedding, message, err)
}

// StorageError wraps a persistence-layer failure.
func StorageError(message string, err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeStorage, message, err)
}

// ProviderSendError wraps a messaging provider failure for one recipient.
func ProviderSendError(message string, err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeProviderSend, message, err)
}

// ExternalSourceError wraps a failure to reach or list an external database.
func ExternalSourceError(message string, err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeExternalSource, message, err)
}

// ValidationError reports a malformed request shape.
func ValidationError(message string) *DomainError {
	return NewDomainError(ErrCodeValidation, message)
}

// Validation errors
var (
	ErrMissingRequiredField    = NewDomainError(ErrCodeValidation, "missing required field")
	ErrMissingRecipients       = NewDomainError(ErrCodeValidation, "at least one recipient is required")
	ErrMissingTemplateName     = NewDomainError(ErrCodeValidation, "template name is required")
	ErrUnsupportedComponent    = NewDomainError(ErrCodeValidation, "unsupported template component type")
	ErrInvalidParameter        = NewDomainError(ErrCodeValidation, "invalid template parameter")
	ErrInvalidCampaignStatus   = NewDomainError(ErrCodeValidation, "invalid campaign status")
	ErrEmptyQuery              = NewDomainError(ErrCodeValidation, "query cannot be empty")
	ErrInvalidConnectionParams = NewDomainError(ErrCodeValidation, "invalid connection parameters")
)

// Not found errors
var (
	ErrCampaignNotFound = NewDomainError(ErrCodeNotFound, "campaign not found")
)

// Authorization errors
var (
	ErrInvalidAPIToken = NewDomainError(ErrCodeUnauthorized, "invalid api token")
)

// Operation errors
var (
	ErrCampaignNotPending = NewDomainError(ErrCodeInvalidOperation, "campaign is not pending")
)

// Ingestion errors
var (
	ErrInvalidEncoding   = NewDomainError(ErrCodeExtraction, "document is not valid UTF-8 text")
	ErrEmbeddingMismatch = NewDomainError(ErrCodeEmbedding, "embedding count does not match chunk count")
)
