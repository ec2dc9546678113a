// Package coreerrors is the shared error taxonomy surfaced at the
// orchestrator boundary. Every error the core returns to a caller is, or
// wraps, a *CoreError so callers can switch on Kind without string
// matching.
package coreerrors

import (
	"errors"
	"fmt"
)

// Kind categorizes a CoreError for retry logic and boundary serialization.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindInvalidState       Kind = "invalid_state"
	KindValidationFailed   Kind = "validation_failed"
	KindPipelineError      Kind = "pipeline_error"
	KindToolTimeout        Kind = "tool_timeout"
	KindLoopTimeout        Kind = "loop_timeout"
	KindLLMError           Kind = "llm_error"
	KindStorageError       Kind = "storage_error"
	KindMaxRetriesExceeded Kind = "max_retries_exceeded"
)

// Retryable reports whether an error of this kind is eligible for the
// FSM's automatic transient-failure retry path.
func (k Kind) Retryable() bool {
	switch k {
	case KindLLMError, KindToolTimeout:
		return true
	default:
		return false
	}
}

// CoreError is the structured error type returned across the orchestrator
// boundary. Message and Cause are kept as given; no filesystem path or
// secret value is stripped from them before the error is surfaced.
type CoreError struct {
	Kind      Kind
	Message   string
	Category  string
	ContextID string
	Cause     error
}

// Error implements the error interface.
func (e *CoreError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s", e.Kind, e.Cause.Error())
	}
	return string(e.Kind)
}

// Unwrap returns the underlying cause, if any.
func (e *CoreError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether this error's kind qualifies for automatic
// retry under the transient-failure budget.
func (e *CoreError) Retryable() bool {
	return e.Kind.Retryable()
}

// New constructs a CoreError of the given kind with a plain message.
func New(kind Kind, message string) *CoreError {
	return &CoreError{Kind: kind, Message: message}
}

// Wrap constructs a CoreError of the given kind around a cause.
func Wrap(kind Kind, cause error, message string) *CoreError {
	return &CoreError{Kind: kind, Message: message, Cause: cause}
}

// WithCategory sets the recovery category (e.g. "pipeline", "llm",
// "file_reference") used by TransientFailure state payloads.
func (e *CoreError) WithCategory(category string) *CoreError {
	e.Category = category
	return e
}

// WithContextID attaches the context id the error occurred on.
func (e *CoreError) WithContextID(id string) *CoreError {
	e.ContextID = id
	return e
}

// NotFound builds a not_found CoreError for the named resource.
func NotFound(resource, id string) *CoreError {
	return New(KindNotFound, fmt.Sprintf("%s %q not found", resource, id))
}

// InvalidState builds an invalid_state CoreError describing the action that
// was rejected and the state it was rejected in.
func InvalidState(action, state string) *CoreError {
	return New(KindInvalidState, fmt.Sprintf("action %q invalid in state %q", action, state))
}

// ValidationFailed builds a validation_failed CoreError.
func ValidationFailed(reason string) *CoreError {
	return New(KindValidationFailed, reason)
}

// As extracts a *CoreError from err's chain, mirroring errors.As.
func As(err error) (*CoreError, bool) {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Is reports whether err is, or wraps, a CoreError of the given kind.
func Is(err error, kind Kind) bool {
	ce, ok := As(err)
	return ok && ce.Kind == kind
}
