package scoring

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a scoring call failure so the orchestrator can decide
// how to record it. The three kinds cover the full failure surface:
// request rejected, model backend failed, or service unreachable.
type ErrorKind string

const (
	// ErrKindClient marks a request the service rejected as invalid (4xx).
	ErrKindClient ErrorKind = "ML_CLIENT_ERROR"
	// ErrKindServer marks a failure inside the service (5xx).
	ErrKindServer ErrorKind = "ML_SERVER_ERROR"
	// ErrKindUnavailable marks a transport-level failure: connection refused,
	// DNS failure, timeout, or an unreadable response.
	ErrKindUnavailable ErrorKind = "ML_SERVICE_UNAVAILABLE"
)

// Error is the typed error returned by Client calls. StatusCode is zero for
// transport-level failures that never produced an HTTP response.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("scoring service: %s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("scoring service: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newClientError(statusCode int, message string) *Error {
	return &Error{Kind: ErrKindClient, StatusCode: statusCode, Message: message}
}

func newServerError(statusCode int, message string) *Error {
	return &Error{Kind: ErrKindServer, StatusCode: statusCode, Message: message}
}

func newUnavailableError(message string, cause error) *Error {
	return &Error{Kind: ErrKindUnavailable, Message: message, Cause: cause}
}

// KindOf extracts the ErrorKind from an error returned by this package.
// Unknown errors are treated as unavailability.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ErrKindUnavailable
}
