package telegram

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode categorizes failures of the Telegram connection layer.
type ErrorCode int

const (
	// ErrUnknown covers uncategorized failures.
	ErrUnknown ErrorCode = iota
	// ErrConfiguration means mandatory credentials are missing or invalid.
	// Fatal at startup.
	ErrConfiguration
	// ErrAuthRequired means the session is unauthenticated or expired and no
	// usable session token was supplied. Requires operator intervention.
	ErrAuthRequired
	// ErrTimeout means connect or an identity check exceeded its bound.
	ErrTimeout
	// ErrFloodWait is the provider rate-limit signal; it carries the required
	// wait duration.
	ErrFloodWait
	// ErrNotConnected means an operation was attempted while disconnected.
	// Surfaced immediately, never retried.
	ErrNotConnected
	// ErrProvider wraps any other external-service failure.
	ErrProvider
)

// String returns the string representation of an ErrorCode.
func (c ErrorCode) String() string {
	switch c {
	case ErrConfiguration:
		return "configuration"
	case ErrAuthRequired:
		return "auth_required"
	case ErrTimeout:
		return "timeout"
	case ErrFloodWait:
		return "flood_wait"
	case ErrNotConnected:
		return "not_connected"
	case ErrProvider:
		return "provider"
	default:
		return "unknown"
	}
}

// Error is a structured connection-layer error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	// Wait is the provider-required wait duration for ErrFloodWait.
	Wait    time.Duration
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Unwrap support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is matches errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates an Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error with a code and message.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Wrapped: err}
}

// FloodWaitError creates the rate-limit error carrying the provider's
// required wait duration.
func FloodWaitError(wait time.Duration) *Error {
	return &Error{
		Code:    ErrFloodWait,
		Message: fmt.Sprintf("flood wait %s required", wait),
		Wait:    wait,
	}
}

// CodeOf extracts the ErrorCode from an error chain, ErrUnknown otherwise.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrUnknown
}

// IsNotConnected reports whether the error chain carries ErrNotConnected.
func IsNotConnected(err error) bool {
	return CodeOf(err) == ErrNotConnected
}

// AsFloodWait extracts the required wait duration from a rate-limit error.
func AsFloodWait(err error) (time.Duration, bool) {
	var e *Error
	if errors.As(err, &e) && e.Code == ErrFloodWait {
		return e.Wait, true
	}
	return 0, false
}
