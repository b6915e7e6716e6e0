package sdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// StatusError is an error carrying a status code to be shown to callers.
type StatusError struct {
	Status  int
	Message string
	Cause   error
}

func NewStatusError(status int, format string, args ...any) *StatusError {
	return &StatusError{Status: status, Message: fmt.Sprintf(format, args...)}
}

func (e *StatusError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Cause)
}

func (e *StatusError) Unwrap() error {
	return e.Cause
}

// IllegalArgumentError tells the request is invalid.
type IllegalArgumentError struct {
	Message string
}

func NewIllegalArgumentError(format string, args ...any) *IllegalArgumentError {
	return &IllegalArgumentError{Message: fmt.Sprintf(format, args...)}
}

func (e *IllegalArgumentError) Error() string {
	return e.Message
}

// IllegalStateError tells something is used in a state it does not support.
type IllegalStateError struct {
	Message string
}

func NewIllegalStateError(format string, args ...any) *IllegalStateError {
	return &IllegalStateError{Message: fmt.Sprintf(format, args...)}
}

func (e *IllegalStateError) Error() string {
	return e.Message
}

// EngineError wraps an error from a storage engine which has no own type.
type EngineError struct {
	Cause error
}

func (e *EngineError) Error() string {
	return e.Cause.Error()
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// CompletionError is a failure of a Future.
type CompletionError struct {
	Cause error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion failed: %s", e.Cause)
}

func (e *CompletionError) Unwrap() error {
	return e.Cause
}

// UnwrapAndConvert normalizes an error coming out of a Future.
//
// It strips one level of CompletionError, then:
//
// - context cancellation and deadline errors are returned as they are,
//
// - errors typed in this package (StatusError, IllegalArgumentError, IllegalStateError
// and EngineError) are returned as they are,
//
// - other errors are wrapped with EngineError.
//
// It never returns *CompletionError.
func UnwrapAndConvert(err error) error {
	if err == nil {
		return nil
	}

	cause := err
	if ce, ok := err.(*CompletionError); ok && ce.Cause != nil {
		cause = ce.Cause
	}

	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return cause
	}

	var (
		statusErr   *StatusError
		argumentErr *IllegalArgumentError
		stateErr    *IllegalStateError
		engineErr   *EngineError
	)
	switch {
	case errors.As(cause, &statusErr),
		errors.As(cause, &argumentErr),
		errors.As(cause, &stateErr),
		errors.As(cause, &engineErr):
		if _, ok := cause.(*CompletionError); !ok {
			return cause
		}
	}
	return &EngineError{Cause: cause}
}

// StatusOf tells the status code which err should be reported with.
func StatusOf(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status
	}
	var argumentErr *IllegalArgumentError
	if errors.As(err, &argumentErr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// IsNotFound reports err is a StatusError with 404.
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

// IsConflict reports err is a StatusError with 409.
func IsConflict(err error) bool {
	return StatusOf(err) == http.StatusConflict
}
