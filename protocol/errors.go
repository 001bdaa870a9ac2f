package protocol

import (
	"errors"
	"fmt"
)

// Kind classifies failures crossing the host boundary so that callers can tell
// transient conditions from hard failures.
type Kind string

const (
	KindNotInitialized   Kind = "ENGINE_NOT_INITIALIZED"
	KindMalformedPayload Kind = "MALFORMED_PAYLOAD"
	KindTimeout          Kind = "TIMEOUT"
	KindHostUnavailable  Kind = "HOST_UNAVAILABLE"
	KindStoreWriteFailed Kind = "PERSISTENT_STORE_WRITE_FAILED"
	KindInternal         Kind = "INTERNAL"
)

// Error is the error type returned by the host, the channel and the cache.
// Two Errors are considered equal by errors.Is when their kinds match.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinels for errors.Is checks.
var (
	ErrNotInitialized   = &Error{Kind: KindNotInitialized, Message: "search engine not initialized"}
	ErrMalformedPayload = &Error{Kind: KindMalformedPayload, Message: "malformed payload"}
	ErrTimeout          = &Error{Kind: KindTimeout, Message: "request timed out"}
	ErrHostUnavailable  = &Error{Kind: KindHostUnavailable, Message: "search host unavailable"}
	ErrStoreWriteFailed = &Error{Kind: KindStoreWriteFailed, Message: "persistent store write failed"}
)

// NewError builds an Error of the given kind.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Malformed is a shorthand for a MALFORMED_PAYLOAD error with a formatted message.
func Malformed(format string, args ...any) *Error {
	return &Error{Kind: KindMalformedPayload, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsTransient reports whether err should be presented as "no results yet"
// rather than as a failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrNotInitialized)
}

// ErrorBody is the wire form of an Error.
type ErrorBody struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Body converts err to its wire form.
func Body(err error) *ErrorBody {
	var e *Error
	if errors.As(err, &e) {
		message := e.Message
		if e.Cause != nil {
			message += ": " + e.Cause.Error()
		}
		return &ErrorBody{Kind: e.Kind, Message: message}
	}
	return &ErrorBody{Kind: KindInternal, Message: err.Error()}
}

// Err converts a wire error back into an *Error.
func (b *ErrorBody) Err() error {
	if b == nil {
		return nil
	}
	return &Error{Kind: b.Kind, Message: b.Message}
}
