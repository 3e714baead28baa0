// Package types holds the engine's shared error vocabulary.
package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Validation error codes. Errors carrying these codes abort a run before
// any task executes.
const (
	ErrConfigInvalid   ErrorCode = "CONFIG_INVALID"
	ErrMissingVariable ErrorCode = "MISSING_VARIABLE"
)

// Execution error codes. Errors carrying these codes never abort a run:
// tool failures become observations in the agent transcript, and backend
// failures degrade the task result after a single retry.
const (
	ErrToolInvocation ErrorCode = "TOOL_INVOCATION"
	ErrBackend        ErrorCode = "BACKEND"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Task      string    `json:"task,omitempty"`     // offending task, when known
	Variable  string    `json:"variable,omitempty"` // unbound placeholder, for ErrMissingVariable
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewConfigError creates a CONFIG_INVALID error with a formatted message.
func NewConfigError(format string, args ...any) *Error {
	return &Error{Code: ErrConfigInvalid, Message: fmt.Sprintf(format, args...)}
}

// NewMissingVariableError reports an unbound placeholder in a task template.
func NewMissingVariableError(variable, task string) *Error {
	return &Error{
		Code:     ErrMissingVariable,
		Message:  fmt.Sprintf("no value provided for placeholder {{%s}} in task %q", variable, task),
		Task:     task,
		Variable: variable,
	}
}

// WithTask sets the offending task identifier.
func (e *Error) WithTask(task string) *Error {
	e.Task = task
	return e
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsConfigError reports whether err carries the CONFIG_INVALID code.
func IsConfigError(err error) bool {
	return GetErrorCode(err) == ErrConfigInvalid
}

// IsMissingVariable reports whether err carries the MISSING_VARIABLE code.
func IsMissingVariable(err error) bool {
	return GetErrorCode(err) == ErrMissingVariable
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error, unwrapping as needed.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
