// Package errors provides velto's structured error type. Errors carry a
// category and a stable code so callers can branch with errors.Is without
// matching on message text.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeSecurity   ErrorType = "security"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodePathTraversal      = "ERR_PATH_TRAVERSAL"
	ErrCodeInvalidPath        = "ERR_INVALID_PATH"
	ErrCodeStaticRead         = "ERR_STATIC_READ"
	ErrCodePortRangeExhausted = "ERR_PORT_RANGE_EXHAUSTED"
	ErrCodeReloadPortMismatch = "ERR_RELOAD_PORT_MISMATCH"
	ErrCodeWatcherInit        = "ERR_WATCHER_INIT"
	ErrCodeWatchPath          = "ERR_WATCH_PATH"
	ErrCodeHandlerPanic       = "ERR_HANDLER_PANIC"
	ErrCodeBodyTooLarge       = "ERR_BODY_TOO_LARGE"
	ErrCodeConfigInvalid      = "ERR_CONFIG_INVALID"
)

// VeltoError is a structured error type with context.
type VeltoError struct {
	Type    ErrorType
	Code    string
	Message string
	Cause   error
	Context map[string]interface{}
	// Path is the filesystem or URL path the error concerns, if any.
	Path string
}

// Error implements the error interface.
func (e *VeltoError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	if e.Path != "" {
		parts = append(parts, e.Path)
	}
	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *VeltoError) Unwrap() error {
	return e.Cause
}

// Is matches another *VeltoError with the same type and code.
func (e *VeltoError) Is(target error) bool {
	var t *VeltoError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *VeltoError) WithContext(key string, value interface{}) *VeltoError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithPath records the path the error concerns.
func (e *VeltoError) WithPath(path string) *VeltoError {
	e.Path = path

	return e
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *VeltoError {
	return &VeltoError{Type: ErrorTypeValidation, Code: code, Message: message}
}

// NewSecurityError creates a security error.
func NewSecurityError(code, message string) *VeltoError {
	return &VeltoError{Type: ErrorTypeSecurity, Code: code, Message: message}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *VeltoError {
	return &VeltoError{Type: ErrorTypeIO, Code: code, Message: message, Cause: cause}
}

// NewNetworkError creates a network error.
func NewNetworkError(code, message string, cause error) *VeltoError {
	return &VeltoError{Type: ErrorTypeNetwork, Code: code, Message: message, Cause: cause}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *VeltoError {
	return &VeltoError{Type: ErrorTypeConfig, Code: code, Message: message}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *VeltoError {
	return &VeltoError{Type: ErrorTypeInternal, Code: code, Message: message, Cause: cause}
}

// IsSecurityError checks if an error is security-related.
func IsSecurityError(err error) bool {
	var ve *VeltoError
	if errors.As(err, &ve) {
		return ve.Type == ErrorTypeSecurity
	}

	return false
}

// HasCode reports whether err wraps a *VeltoError carrying code.
func HasCode(err error, code string) bool {
	var ve *VeltoError
	if errors.As(err, &ve) {
		return ve.Code == code
	}

	return false
}
