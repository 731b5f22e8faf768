package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cloo-solutions/supportdesk/internal/domain"
)

// SuccessResponse wraps successful API responses
type SuccessResponse struct {
	Data interface{} `json:"data"`
}

// ErrorResponse represents an error API response
type ErrorResponse struct {
	Error string `json:"error"`
}

// JSON writes a JSON response with the given status code
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// Success writes a successful JSON response
func Success(w http.ResponseWriter, status int, data interface{}) {
	JSON(w, status, SuccessResponse{Data: data})
}

// Error writes an error JSON response
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// DomainErrorToHTTP maps domain errors to HTTP status codes
func DomainErrorToHTTP(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var domainErr *domain.DomainError
	if !errors.As(err, &domainErr) {
		return http.StatusInternalServerError
	}

	switch domainErr.Code {
	case domain.ErrCodeValidation:
		return http.StatusBadRequest
	case domain.ErrCodeNotFound:
		return http.StatusNotFound
	case domain.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case domain.ErrCodeInvalidOperation:
		return http.StatusConflict
	case domain.ErrCodeExtraction:
		return http.StatusUnprocessableEntity
	case domain.ErrCodeEmbedding, domain.ErrCodeProviderSend, domain.ErrCodeExternalSource:
		return http.StatusBadGateway
	case domain.ErrCodeStorage, domain.ErrCodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// publicError is implemented by errors that carry a caller-safe message.
type publicError interface {
	PublicMessage() string
}

// PublicMessage returns the text sent to API callers. Client errors keep
// their detail; upstream and server failures only expose the domain message.
func PublicMessage(err error) string {
	var pub publicError
	if errors.As(err, &pub) {
		return pub.PublicMessage()
	}

	var domainErr *domain.DomainError
	if !errors.As(err, &domainErr) {
		return "internal server error"
	}
	switch domainErr.Code {
	case domain.ErrCodeValidation, domain.ErrCodeNotFound, domain.ErrCodeInvalidOperation, domain.ErrCodeExtraction:
		return err.Error()
	}
	return domainErr.Message
}

// HandleError writes an appropriate error response based on the error type
func HandleError(w http.ResponseWriter, err error) {
	status := DomainErrorToHTTP(err)
	Error(w, status, PublicMessage(err))
}
