// Package errors defines the error taxonomy shared by the build coordinator,
// the type-check sidecar and the CLI.
//
// Errors are classified by how the caller must react to them: configuration
// errors abort startup, build errors are already reported by the bundler and
// only degrade output, disposal errors indicate leaked resources and always
// propagate, watcher errors are reported and watching continues.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeConfig   ErrorType = "config"
	ErrorTypeBuild    ErrorType = "build"
	ErrorTypeIO       ErrorType = "io"
	ErrorTypeWatcher  ErrorType = "watcher"
	ErrorTypeInternal ErrorType = "internal"
)

// Error is a structured error type with context.
type Error struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	FilePath    string
	Recoverable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.FilePath != "" {
		parts = append(parts, e.FilePath)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target carries the same type and code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithFile adds the offending file path.
func (e *Error) WithFile(path string) *Error {
	e.FilePath = path

	return e
}

// NewConfigError creates a configuration error. Configuration errors are
// fatal for the goroutine that hits them.
func NewConfigError(code, message string, cause error) *Error {
	return &Error{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewBuildError creates a build error.
func NewBuildError(code, message string, cause error) *Error {
	return &Error{
		Type:        ErrorTypeBuild,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *Error {
	return &Error{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewWatcherError creates a file watcher error.
func NewWatcherError(code, message string, cause error) *Error {
	return &Error{
		Type:        ErrorTypeWatcher,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *Error {
	return &Error{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Recoverable
	}

	return false
}

// IsConfigError checks if an error is configuration-related.
func IsConfigError(err error) bool {
	return hasType(err, ErrorTypeConfig)
}

// IsBuildError checks if an error is build-related.
func IsBuildError(err error) bool {
	return hasType(err, ErrorTypeBuild)
}

func hasType(err error, t ErrorType) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == t
	}

	return false
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// ErrorHandler provides centralized error handling.
type ErrorHandler struct {
	logger Logger
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs recoverable errors as warnings and everything else as errors.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var e *Error
	if !errors.As(err, &e) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	if IsRecoverable(err) {
		h.logger.Warn(ctx, err, "Recoverable error occurred",
			"type", e.Type,
			"code", e.Code,
			"file", e.FilePath)
		return
	}

	h.logger.Error(ctx, err, "Error occurred",
		"type", e.Type,
		"code", e.Code,
		"file", e.FilePath)
}

// Common error codes.
const (
	ErrCodeConfigNotFound = "ERR_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_CONFIG_INVALID"
	ErrCodeNoContext      = "ERR_NO_CONTEXT"
	ErrCodeContextCreate  = "ERR_CONTEXT_CREATE"
	ErrCodeDispose        = "ERR_DISPOSE"
	ErrCodeServe          = "ERR_SERVE"
	ErrCodeBuildFailed    = "ERR_BUILD_FAILED"
	ErrCodeWatch          = "ERR_WATCH"
	ErrCodeClean          = "ERR_CLEAN"
	ErrCodeTypeCheck      = "ERR_TYPECHECK"
)
