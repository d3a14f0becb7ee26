// Package errors defines the typed error taxonomy shared across the
// task store, supervisor, RPC layer, and workspace manager so that
// callers (the coordinator's RPC responses in particular) can map any
// internal failure onto one of a small, stable set of kinds.
package errors

import "fmt"

// Kind classifies a failure for the purpose of RPC error responses and
// HTTP-equivalent status mapping.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindGone         Kind = "gone"
	KindConflict     Kind = "conflict"
	KindBadRequest   Kind = "bad_request"
	KindInternal     Kind = "internal"
	KindTimeout      Kind = "timeout"
	KindUnauthorized Kind = "unauthorized"
)

// Error wraps an underlying cause with a Kind and a human-readable
// message, while still supporting errors.Is/errors.As via Unwrap.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a typed error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a typed error of the given kind around an existing error.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func NotFound(message string) *Error     { return New(KindNotFound, message) }
func Gone(message string) *Error         { return New(KindGone, message) }
func Conflict(message string) *Error     { return New(KindConflict, message) }
func BadRequest(message string) *Error   { return New(KindBadRequest, message) }
func Internal(cause error, message string) *Error {
	return Wrap(KindInternal, cause, message)
}
func Timeout(message string) *Error      { return New(KindTimeout, message) }
func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }

// KindOf extracts the Kind of err if it (or something it wraps) is an
// *Error, defaulting to KindInternal for anything else.
func KindOf(err error) Kind {
	var typed *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			typed = e
			break
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrapper.Unwrap()
	}
	if typed == nil {
		return KindInternal
	}
	return typed.Kind
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
