package livefeed

import (
	"errors"
	"fmt"
)

// ErrorCode represents a categorized error type.
type ErrorCode int

const (
	// Protocol violations
	ErrorUnknown ErrorCode = iota
	ErrorUnknownEvent
	ErrorServer
	ErrorSerialization

	// Transport failures
	ErrorConnection
	ErrorDisconnected
	ErrorTimeout
	ErrorNotConnected

	// Submission failures
	ErrorRateLimited
	ErrorAlreadyAnswered
	ErrorSubmission

	// Client-side validation
	ErrorEmptyAnswer
	ErrorInvalidConfig
)

// String returns the string representation of an ErrorCode.
func (e ErrorCode) String() string {
	switch e {
	case ErrorUnknown:
		return "unknown"
	case ErrorUnknownEvent:
		return "unknown_event"
	case ErrorServer:
		return "server_error"
	case ErrorSerialization:
		return "serialization_error"
	case ErrorConnection:
		return "connection_error"
	case ErrorDisconnected:
		return "disconnected"
	case ErrorTimeout:
		return "timeout"
	case ErrorNotConnected:
		return "not_connected"
	case ErrorRateLimited:
		return "too_fast"
	case ErrorAlreadyAnswered:
		return "already_answered"
	case ErrorSubmission:
		return "submission_failed"
	case ErrorEmptyAnswer:
		return "empty_answer"
	case ErrorInvalidConfig:
		return "invalid_config"
	default:
		return fmt.Sprintf("unknown_code_%d", e)
	}
}

// FeedError is a structured error with code and context.
type FeedError struct {
	Code    ErrorCode
	Message string
	Wrapped error
}

// Error implements the error interface.
func (e *FeedError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s (wrapped: %v)", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Unwrap support.
func (e *FeedError) Unwrap() error {
	return e.Wrapped
}

// Is matches another *FeedError with the same code.
func (e *FeedError) Is(target error) bool {
	t, ok := target.(*FeedError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new FeedError with the given code and message.
func NewError(code ErrorCode, message string) *FeedError {
	return &FeedError{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with a FeedError.
func WrapError(code ErrorCode, message string, err error) *FeedError {
	return &FeedError{
		Code:    code,
		Message: message,
		Wrapped: err,
	}
}

// CodeOf returns the code of the first FeedError in err's chain, or ErrorUnknown.
func CodeOf(err error) ErrorCode {
	var fe *FeedError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ErrorUnknown
}

// IsProtocolError reports whether the server violated the event protocol.
func IsProtocolError(err error) bool {
	if err == nil {
		return false
	}
	var fe *FeedError
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Code >= ErrorUnknownEvent && fe.Code <= ErrorSerialization
}

// IsConnectionError checks if an error is a connection-related error.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var fe *FeedError
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Code >= ErrorConnection && fe.Code <= ErrorNotConnected
}

// IsSubmissionError reports whether an answer submission was refused or failed.
func IsSubmissionError(err error) bool {
	if err == nil {
		return false
	}
	var fe *FeedError
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Code >= ErrorRateLimited && fe.Code <= ErrorSubmission
}
