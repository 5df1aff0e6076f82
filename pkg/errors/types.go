// Package errors defines the structured error taxonomy for the request
// path. Every failure category the pipeline distinguishes maps to one code
// so callers (and the HTTP layer) can branch without string matching.
package errors

import (
	"fmt"
	"strings"
)

// ErrorCode identifies a failure category.
type ErrorCode string

const (
	// Request admission
	ErrCodeInputInvalid ErrorCode = "INPUT_INVALID"
	ErrCodeWordNotFound ErrorCode = "WORD_NOT_FOUND"

	// Budget governance
	ErrCodeBudgetExceeded ErrorCode = "BUDGET_EXCEEDED"

	// Shared-store coordination
	ErrCodeCoordinationUnavailable ErrorCode = "COORDINATION_UNAVAILABLE"
	ErrCodeStoreRead               ErrorCode = "STORE_READ"
	ErrCodeStoreWrite              ErrorCode = "STORE_WRITE"

	// Research and synthesis
	ErrCodeUpstreamTimeout       ErrorCode = "UPSTREAM_TIMEOUT"
	ErrCodeMalformedModelOutput  ErrorCode = "MALFORMED_MODEL_OUTPUT"
	ErrCodeSchemaValidation      ErrorCode = "SCHEMA_VALIDATION_FAILED"
	ErrCodeModelAPI              ErrorCode = "MODEL_API_ERROR"
	ErrCodeModelCircuitOpen      ErrorCode = "MODEL_CIRCUIT_OPEN"

	// Configuration
	ErrCodeConfigLoad    ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"

	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Error is the structured error carried through the pipeline.
type Error struct {
	Code        ErrorCode
	Message     string
	Underlying  error
	Context     map[string]any
	Retryable   bool
	UserMessage string
}

// New creates a structured error.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// Wrap attaches a code and message to an existing error. Returns nil for a
// nil error so call sites can wrap unconditionally.
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:       code,
		Message:    message,
		Underlying: err,
		Context:    make(map[string]any),
	}
}

// WithContext adds a key-value pair for log output.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithRetryable marks whether the caller may retry the operation.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithUserMessage sets the message surfaced to API clients. When empty,
// Message is used.
func (e *Error) WithUserMessage(message string) *Error {
	e.UserMessage = message
	return e
}

func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.Code, e.Message)
	if len(e.Context) > 0 {
		sb.WriteString(" {")
		first := true
		for k, v := range e.Context {
			if !first {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s: %v", k, v)
			first = false
		}
		sb.WriteString("}")
	}
	if e.Underlying != nil {
		fmt.Fprintf(&sb, ": %v", e.Underlying)
	}
	return sb.String()
}

// Unwrap supports errors.Is/As over the underlying cause.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// ForUser returns the client-facing message.
func (e *Error) ForUser() string {
	if e.UserMessage != "" {
		return e.UserMessage
	}
	return e.Message
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// GetCode extracts the code from an error, defaulting to INTERNAL for
// foreign error types and "" for nil.
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}
	e, ok := err.(*Error)
	if !ok {
		return ErrCodeInternal
	}
	return e.Code
}

// IsRetryable reports whether the error is marked retryable.
func IsRetryable(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Retryable
}
