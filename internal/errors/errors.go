package errors

import (
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// APIError represents a structured API error response
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// Render implements the render.Renderer interface for chi/render
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// ValidationError represents validation errors
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// New creates a new APIError with the given parameters
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
	}
}

// NewWithDetails creates a new APIError with additional details
func NewWithDetails(statusCode int, errorCode, message string, details interface{}) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
		Details:    details,
	}
}

// Error codes for the license access-control surface
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInvalidKeyFormat   = "INVALID_LICENSE_KEY"
	CodeAlreadyActive      = "ALREADY_ACTIVATED"
	CodeLicenseRequired    = "LICENSE_REQUIRED"
	CodeLicenseExpired     = "LICENSE_EXPIRED"
	CodeMockClientRejected = "MOCK_CLIENT_REJECTED"
	CodeCircuitOpen        = "CIRCUIT_OPEN"
	CodeDownstreamTimeout  = "DOWNSTREAM_TIMEOUT"
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	CodeNotFound           = "NOT_FOUND"
	CodeInternal           = "INTERNAL_SERVER_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeWebSocketUpgrade   = "WEBSOCKET_UPGRADE_FAILED"
)

// Predefined error types for common scenarios
var (
	// 400 Bad Request
	ErrInvalidRequest   = New(http.StatusBadRequest, CodeInvalidRequest, "Invalid request format")
	ErrValidationFailed = New(http.StatusBadRequest, CodeValidationFailed, "Request validation failed")
	ErrInvalidKeyFormat = New(http.StatusBadRequest, CodeInvalidKeyFormat, "The provided license key is invalid or malformed")

	// 401 Unauthorized
	ErrUnauthorized = New(http.StatusUnauthorized, CodeUnauthorized, "Authentication required")

	// 403 Forbidden
	ErrLicenseRequired    = New(http.StatusForbidden, CodeLicenseRequired, "An active license is required to access this resource")
	ErrMockClientRejected = New(http.StatusForbidden, CodeMockClientRejected, "Mock or test client identities are not accepted in production")

	// 404 Not Found
	ErrNotFound = New(http.StatusNotFound, CodeNotFound, "Resource not found")

	// 409 Conflict
	ErrAlreadyActive = New(http.StatusConflict, CodeAlreadyActive, "This license key is already active")

	// 429 Too Many Requests
	ErrRateLimitExceeded = New(http.StatusTooManyRequests, CodeRateLimitExceeded, "Too many activation attempts. Please try again later")

	// 500 Internal Server Error
	ErrInternalServer   = New(http.StatusInternalServerError, CodeInternal, "Internal server error")
	ErrWebSocketUpgrade = New(http.StatusInternalServerError, CodeWebSocketUpgrade, "WebSocket upgrade failed")

	// 503 Service Unavailable
	ErrServiceUnavailable = New(http.StatusServiceUnavailable, CodeServiceUnavailable, "Service temporarily unavailable")
	ErrCircuitOpen        = New(http.StatusServiceUnavailable, CodeCircuitOpen, "Downstream dependency unavailable, circuit open")

	// 504 Gateway Timeout
	ErrDownstreamTimeout = New(http.StatusGatewayTimeout, CodeDownstreamTimeout, "Downstream dependency timed out")
)

// InvalidRequestWithError creates an invalid request error with details
func InvalidRequestWithError(err error) *APIError {
	return NewWithDetails(http.StatusBadRequest, CodeInvalidRequest, "Invalid request format", err.Error())
}

// ErrValidation creates a validation error with field details
func ErrValidation(field, message string) *APIError {
	return NewWithDetails(http.StatusBadRequest, CodeValidationFailed, "Request validation failed", ValidationError{
		Field:   field,
		Message: message,
	})
}

// LicenseRequiredWithReason creates a 403 denial carrying the authority's reason
func LicenseRequiredWithReason(reason string) *APIError {
	if reason == "" {
		return ErrLicenseRequired
	}
	return NewWithDetails(http.StatusForbidden, CodeLicenseRequired, reason, nil)
}

// NotFoundError creates a not found error with details
func NotFoundError(resource string) *APIError {
	return NewWithDetails(http.StatusNotFound, CodeNotFound, fmt.Sprintf("%s not found", resource), resource)
}

// InternalError creates an internal server error wrapping err
func InternalError(err error) *APIError {
	return NewWithDetails(http.StatusInternalServerError, CodeInternal, "Internal server error", err.Error())
}
