// Package apperr defines the typed errors shared by the service and storage
// layers. Every failure carries exactly one Kind so callers can branch on it
// with errors.Is and handlers can map it to a stable status code.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the machine-checkable classification of a failure.
type Kind int

const (
	Unknown Kind = iota
	// NotFound: the referenced event, registration, or user does not exist.
	NotFound
	// Conflict: duplicate registration, full event, or duplicate email.
	Conflict
	// Forbidden: the caller's role does not permit the operation.
	Forbidden
	// Validation: malformed or out-of-range input.
	Validation
	// Unavailable: the storage layer could not complete the logical
	// transaction; safe to retry.
	Unavailable
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Forbidden:
		return "forbidden"
	case Validation:
		return "validation"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error is the domain error type.
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

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by kind, so errors.Is(err, apperr.New(Conflict, ""))
// style sentinels work regardless of message.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates an error with a kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error with a kind and formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error that keeps the underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the kind from an error chain, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
