// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for the relay.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the relay.
var (
	ErrConsumerClosed   = errors.New("consumer is closed")
	ErrSendQueueFull    = errors.New("consumer send queue full")
	ErrMalformedMessage = errors.New("malformed control message")
	ErrUnsupportedKind  = errors.New("unsupported message kind")
	ErrCapacityReached  = errors.New("capacity reached")
	ErrProbeUnanswered  = errors.New("liveness probe unanswered")
	ErrOperationTimeout = errors.New("operation timeout")
)

// ErrorCode represents specific error conditions in the relay.
type ErrorCode int

const (
	ErrCodeInvalidArgument ErrorCode = iota + 1
	ErrCodeResourceExhausted
	ErrCodeTimeout
	ErrCodeInternal
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// Unwrap exposes the sentinel the error was built from.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// Wrap attaches a sentinel so that errors.Is keeps working.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
