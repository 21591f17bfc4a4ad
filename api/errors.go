// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error taxonomy for hioload-io. Transient conditions (ErrWouldBlock)
// are signals, not failures: they are consumed inside the socket/multiplexer
// pair and retried on the next readiness event. Everything else propagates
// to the caller of the failing operation.

package api

import (
	"errors"
	"fmt"
)

// Sentinel errors used across the library.
var (
	// ErrWouldBlock reports that the operation cannot make progress right
	// now. Retry after the next readiness event.
	ErrWouldBlock = errors.New("operation would block")

	// ErrConnectionClosed reports an orderly peer shutdown. Terminal for
	// the read side; never retried.
	ErrConnectionClosed = errors.New("connection closed by peer")

	// ErrTimeout reports that an operation exceeded its caller-specified
	// bound. The underlying handle is closed to avoid leaking a half-open
	// OS resource.
	ErrTimeout = errors.New("operation timeout")

	// ErrHandleClosed reports use of a handle after Close.
	ErrHandleClosed = errors.New("handle is closed")

	// ErrResourceExhausted reports OS descriptor or memory exhaustion.
	// Fatal to the specific operation only.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrAlreadyRegistered reports a conflicting queue registration.
	ErrAlreadyRegistered = errors.New("handle already registered")

	// ErrNotRegistered reports a Modify/Deregister on an absent handle.
	ErrNotRegistered = errors.New("handle not registered")

	// ErrExecutorClosed reports a Submit on a stopping executor.
	ErrExecutorClosed = errors.New("executor is closed")

	// ErrQueueClosed reports use of an event queue after Close.
	ErrQueueClosed = errors.New("event queue is closed")

	// ErrNotSupported reports a facility missing on this platform.
	ErrNotSupported = errors.New("operation not supported")
)

// ErrorCode classifies structured errors.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeWouldBlock
	ErrCodeConnectionClosed
	ErrCodeTimeout
	ErrCodeHandleClosed
	ErrCodeResourceExhausted
	ErrCodeRegistration
	ErrCodeIO
	ErrCodeInternal
)

// Error is a structured error carrying a code, a portable sentinel and
// optional context values for diagnostics.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Cause != nil && len(e.Context) > 0:
		return fmt.Sprintf("%s: %v (context: %+v)", e.Message, e.Cause, e.Context)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	case len(e.Context) > 0:
		return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
	default:
		return e.Message
	}
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *Error) Unwrap() error { return e.Cause }

// NewError creates a structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError attaches a code and message to an existing error.
func WrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithContext adds a context value to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// IsTransient reports whether err is a retry-after-readiness signal rather
// than a failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrWouldBlock)
}
