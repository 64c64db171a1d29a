// Package apperr defines the error kinds shared by the services and the
// single place that decides how much of an error a caller gets to see.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the transport layer
type Kind int

const (
	// KindInternal is anything not classified below. Callers only ever see a generic message.
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindConflict
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Error is a classified error with a message that is safe to return to clients
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports malformed or missing input
func Validation(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

// Auth reports a missing, invalid or expired credential
func Auth(msg string) error {
	return &Error{Kind: KindAuth, Message: msg}
}

// Conflict reports a uniqueness violation
func Conflict(msg string) error {
	return &Error{Kind: KindConflict, Message: msg}
}

// Upstream reports a retryable failure of an external dependency
func Upstream(msg string, err error) error {
	return &Error{Kind: KindUpstream, Message: msg, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the client-safe message for err
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "Server error"
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
