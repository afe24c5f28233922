package errors

import (
	"errors"
	"fmt"
)

// Common application errors
var (
	// Cache errors
	ErrCacheMiss        = errors.New("model not found in cache")
	ErrCacheWriteFailed = errors.New("durable cache write failed")
	ErrCacheReadFailed  = errors.New("durable cache read failed")
	ErrCacheClosed      = errors.New("cache is closed")

	// Registry errors
	ErrModelNotFound     = errors.New("model not found")
	ErrVersionNotFound   = errors.New("model version not found")
	ErrVersionExists     = errors.New("model version already exists")
	ErrInvalidTransition = errors.New("invalid version status transition")
	ErrValidationFailed  = errors.New("version validation failed")

	// Deployment errors
	ErrInvalidStrategy      = errors.New("invalid deployment strategy")
	ErrInvalidPlan          = errors.New("invalid deployment plan")
	ErrHealthCheckFailed    = errors.New("health check failed")
	ErrHealthCheckTimeout   = errors.New("health check timed out")
	ErrDeploymentStepFailed = errors.New("deployment step failed")
	ErrRollbackImpossible   = errors.New("rollback impossible: no previous version")
	ErrDeploymentNotFound   = errors.New("no deployment state for model")

	// Storage errors
	ErrStorageConnectionFailed = errors.New("storage connection failed")
	ErrStorageWriteFailed      = errors.New("storage write failed")
	ErrStorageReadFailed       = errors.New("storage read failed")
	ErrRecordCorrupted         = errors.New("stored record corrupted")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing configuration")

	// Internal errors
	ErrInternal       = errors.New("internal error")
	ErrNotImplemented = errors.New("not implemented")
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeCache         ErrorType = "cache"
	ErrorTypeRegistry      ErrorType = "registry"
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeDeployment    ErrorType = "deployment"
	ErrorTypeStorage       ErrorType = "storage"
	ErrorTypeMonitoring    ErrorType = "monitoring"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeInternal      ErrorType = "internal"
)

// AppError represents an application-specific error with additional context
type AppError struct {
	Type      ErrorType              `json:"type"`
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Retryable bool                   `json:"retryable"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with application context
func WrapError(err error, errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:      errType,
		Code:      code,
		Message:   message,
		Cause:     err,
		Retryable: isRetryable(err),
	}
}

// NewCacheError creates a cache error
func NewCacheError(code, message string) *AppError {
	return NewAppError(ErrorTypeCache, code, message)
}

// NewRegistryError creates a registry error
func NewRegistryError(code, message string) *AppError {
	return NewAppError(ErrorTypeRegistry, code, message)
}

// NewValidationError creates a validation error
func NewValidationError(code, message string) *AppError {
	return NewAppError(ErrorTypeValidation, code, message)
}

// NewDeploymentError creates a deployment error
func NewDeploymentError(code, message string) *AppError {
	return NewAppError(ErrorTypeDeployment, code, message)
}

// NewStorageError creates a storage error
func NewStorageError(code, message string) *AppError {
	return &AppError{
		Type:      ErrorTypeStorage,
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// NewMonitoringError creates a monitoring error
func NewMonitoringError(code, message string) *AppError {
	return NewAppError(ErrorTypeMonitoring, code, message)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, CodeInternalError, message)
}

// isRetryable determines if an error is retryable
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, ErrStorageConnectionFailed):
		return true
	case errors.Is(err, ErrStorageWriteFailed):
		return true
	case errors.Is(err, ErrStorageReadFailed):
		return true
	case errors.Is(err, ErrHealthCheckTimeout):
		return true
	default:
		return false
	}
}

// Error codes for different error scenarios
const (
	// Cache error codes
	CodeCacheMiss        = "CACHE_MISS"
	CodeCacheWriteFailed = "CACHE_WRITE_FAILED"
	CodeCacheExpired     = "CACHE_EXPIRED"

	// Registry error codes
	CodeModelNotFound     = "MODEL_NOT_FOUND"
	CodeVersionNotFound   = "VERSION_NOT_FOUND"
	CodeVersionExists     = "VERSION_EXISTS"
	CodeInvalidTransition = "INVALID_TRANSITION"

	// Validation error codes
	CodeGateFailed      = "VALIDATION_GATE_FAILED"
	CodeBenchmarkFailed = "BENCHMARK_FAILED"
	CodeInvalidInput    = "INVALID_INPUT"

	// Deployment error codes
	CodeInvalidStrategy    = "INVALID_STRATEGY"
	CodeInvalidPlan        = "INVALID_PLAN"
	CodeHealthCheckFailed  = "HEALTH_CHECK_FAILED"
	CodeStepFailed         = "STEP_FAILED"
	CodeRollbackImpossible = "ROLLBACK_IMPOSSIBLE"
	CodeDeploymentNotFound = "DEPLOYMENT_NOT_FOUND"

	// Storage error codes
	CodeConnectionFailed = "CONNECTION_FAILED"
	CodeWriteFailed      = "WRITE_FAILED"
	CodeReadFailed       = "READ_FAILED"
	CodeRecordCorrupted  = "RECORD_CORRUPTED"

	// Configuration error codes
	CodeInvalidConfig = "INVALID_CONFIG"
	CodeMissingConfig = "MISSING_CONFIG"

	// Internal error codes
	CodeInternalError  = "INTERNAL_ERROR"
	CodeNotImplemented = "NOT_IMPLEMENTED"
)
