// Package errors provides structured errors with a category code, a
// human-readable message, and an optional suggestion for fixing the problem.
// The collector uses the code to decide whether a failure is retryable.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for categorizing failures.
const (
	// ErrConfig indicates a missing or invalid configuration field. Fatal
	// to the poll loop; surfaced as config_errors rather than retried.
	ErrConfig = "CONFIG"
	// ErrAuth indicates the remote host rejected our credentials.
	ErrAuth = "AUTH"
	// ErrHostKey indicates host key verification failed.
	ErrHostKey = "HOSTKEY"
	// ErrTimeout indicates a connect or command deadline expired.
	ErrTimeout = "TIMEOUT"
	// ErrNetwork indicates a connection-level failure (refused, unreachable,
	// broken pipe).
	ErrNetwork = "NETWORK"
	// ErrExec indicates the remote command ran but failed.
	ErrExec = "EXEC"
	// ErrParse indicates the command output could not be parsed.
	ErrParse = "PARSE"
)

// Error is a categorized error with an optional suggestion and cause.
type Error struct {
	Code       string
	Message    string
	Suggestion string
	Cause      error
}

// New creates a structured error with the given code, message, and suggestion.
func New(code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
	}
}

// Wrap wraps an existing error with a message, defaulting to ErrNetwork code.
func Wrap(err error, message string) *Error {
	return &Error{
		Code:    ErrNetwork,
		Message: message,
		Cause:   err,
	}
}

// WrapWithCode wraps an existing error with a specific code, message, and suggestion.
func WrapWithCode(err error, code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
		Cause:      err,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %s", e.Cause.Error()))
	}
	return b.String()
}

// Detail returns a multi-line rendering including the suggestion, for
// terminal output.
func (e *Error) Detail() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("✗ %s\n", e.Message))
	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Cause.Error()))
	}
	if e.Suggestion != "" {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Suggestion))
	}
	return b.String()
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsCode checks if an error is a structured Error with the given code.
func IsCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Code == code
	}
	return false
}

// CodeOf returns the code of a structured error, or ErrNetwork when the
// error carries no code. Returns "" for nil.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Code
	}
	return ErrNetwork
}
