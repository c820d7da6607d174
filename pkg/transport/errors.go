package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorType represents the category of an error response.
type ErrorType string

const (
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeUnauthenticated ErrorType = "unauthenticated"
	ErrorTypeForbidden       ErrorType = "forbidden"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeTooManyRequests ErrorType = "too_many_requests"
	ErrorTypeBadGateway      ErrorType = "bad_gateway"
)

// APIError is the body of an error response.
type APIError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorResponse wraps an APIError for JSON serialization as the top-level error response.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// HTTPStatusFromError maps an error type to the corresponding HTTP status code.
func HTTPStatusFromError(err *APIError) int {
	switch err.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeUnauthenticated:
		return http.StatusUnauthorized
	case ErrorTypeForbidden:
		return http.StatusForbidden
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeTooManyRequests:
		return http.StatusTooManyRequests
	case ErrorTypeBadGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody returns the encoded error envelope.
func ErrorBody(errType ErrorType, message string) []byte {
	b, _ := json.Marshal(ErrorResponse{Error: &APIError{Type: errType, Message: message}})
	return append(b, '\n')
}

// WriteErrorResponse writes a JSON error response with the given status code.
func WriteErrorResponse(w http.ResponseWriter, apiErr *APIError, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: apiErr})
}

// WriteError writes an error response, deriving the HTTP status code from
// the error type.
func WriteError(w http.ResponseWriter, errType ErrorType, message string) {
	apiErr := &APIError{Type: errType, Message: message}
	WriteErrorResponse(w, apiErr, HTTPStatusFromError(apiErr))
}
