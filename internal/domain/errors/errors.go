package errors

import (
	"errors"
	"fmt"
)

// Error types for different failure classes
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeModel          ErrorType = "model"
	ErrorTypeInfrastructure ErrorType = "infrastructure"
	ErrorTypeConfiguration  ErrorType = "configuration"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeUnauthorized   ErrorType = "unauthorized"
	ErrorTypeInternal       ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Retryable  bool                   `json:"retryable"`
	StatusCode int                    `json:"status_code"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// Error constructors

// NewValidationError builds the only error class surfaced to callers of the
// analysis pipeline: a malformed transaction context is rejected outright
// rather than scored.
func NewValidationError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 400,
	}
}

// NewModelError marks a risk-model failure. These are absorbed inside the
// engine and degrade scoring to rule-only mode.
func NewModelError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeModel,
		Code:       "MODEL_UNAVAILABLE",
		Message:    message,
		Retryable:  true,
		StatusCode: 503,
	}
}

// NewInfrastructureError marks a store/cache/audit failure. These trigger the
// engine's fail-safe review result and are never re-thrown to callers.
func NewInfrastructureError(component, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInfrastructure,
		Code:       "INFRASTRUCTURE_ERROR",
		Message:    fmt.Sprintf("%s: %s", component, message),
		Retryable:  true,
		StatusCode: 503,
		Details:    map[string]interface{}{"component": component},
	}
}

// NewConfigurationError marks invalid startup configuration. Fatal at process
// start, never produced per-request.
func NewConfigurationError(field, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeConfiguration,
		Code:       "INVALID_CONFIGURATION",
		Message:    message,
		Retryable:  false,
		StatusCode: 500,
		Details:    map[string]interface{}{"field": field},
	}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       "RESOURCE_NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		Retryable:  false,
		StatusCode: 404,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
		Retryable:  false,
		StatusCode: 401,
	}
}

func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Retryable:  true,
		StatusCode: 500,
	}
}

// Wrap wraps an error with a message using fmt.Errorf with %w
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// GetStatusCode extracts HTTP status code from error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return 500
}
