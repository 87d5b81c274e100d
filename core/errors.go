package core

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode identifies a stable, externally visible failure category. Codes
// are part of the HTTP contract and must not be renamed.
type ErrorCode string

const (
	// CodeNotFound signals that a referenced entity (agent, conversation,
	// task, workflow) is absent. Caller-correctable.
	CodeNotFound ErrorCode = "NOT_FOUND"
	// CodeAlreadyExists signals a conflicting re-creation of an entity.
	CodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	// CodeCyclicDependency signals an invalid workflow graph, rejected at
	// creation time before anything is scheduled.
	CodeCyclicDependency ErrorCode = "CYCLIC_DEPENDENCY"
	// CodeAgentUnavailable signals that no eligible agent could serve a
	// request. Reported to the caller, never silently retried by routing.
	CodeAgentUnavailable ErrorCode = "AGENT_UNAVAILABLE"
	// CodeInvocationFailure signals an agent invocation that settled into
	// failure after internal retries were exhausted.
	CodeInvocationFailure ErrorCode = "INVOCATION_FAILURE"
	// CodeCancelled signals explicit or timeout-driven cancellation.
	CodeCancelled ErrorCode = "CANCELLED"
	// CodeInternal is the fallback for uncategorized errors.
	CodeInternal ErrorCode = "INTERNAL"
)

// Error is the coded error type carried across component boundaries. The
// Code stays stable for programmatic handling while Message is free-form.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.Err }

// NewError constructs a coded error with a formatted message.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError constructs a coded error wrapping an underlying cause.
func WrapError(code ErrorCode, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the ErrorCode from an error chain, defaulting to
// CodeInternal for uncoded errors and CodeCancelled for context
// cancellation.
func CodeOf(err error) ErrorCode {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	if errors.Is(err, context.Canceled) {
		return CodeCancelled
	}
	return CodeInternal
}

// IsCode reports whether the error chain carries the given code.
func IsCode(err error, code ErrorCode) bool { return CodeOf(err) == code }

// retryable is implemented by errors that mark an invocation failure as
// transient and therefore eligible for retry with backoff.
type retryable interface {
	Retryable() bool
}

// TransientError wraps an invocation error to mark it retryable.
type TransientError struct {
	Err error
}

// Error implements the error interface.
func (e *TransientError) Error() string { return e.Err.Error() }

// Unwrap exposes the wrapped cause.
func (e *TransientError) Unwrap() error { return e.Err }

// Retryable marks the error as transient.
func (e *TransientError) Retryable() bool { return true }

// Transient wraps err so the task engine treats it as a retryable failure.
// A nil err yields nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsRetryable reports whether an invocation error should be retried.
// Per-invocation timeouts count as retryable.
func IsRetryable(err error) bool {
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
