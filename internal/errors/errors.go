// Package errors defines the error kinds raised by the transport, channel
// and client driver layers of the LIME client.
package errors

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories a LIME operation can fail
// with. Callers test for a kind with this package's Is(err, kind), never
// by comparing error strings.
type Kind int

const (
	// InvalidArgument marks a null/zero required parameter, an
	// unsupported URI scheme, or a malformed node string.
	InvalidArgument Kind = iota
	// InvalidState marks an operation disallowed in the current
	// session state, or any call on a closed transport/channel.
	InvalidState
	// BufferOverflow marks an inbound envelope that exceeded the
	// transport's configured buffer capacity.
	BufferOverflow
	// Serialization marks a JSON document that could not be produced
	// or parsed into an envelope.
	Serialization
	// IO marks a socket read/write failure.
	IO
	// Timeout marks a client driver bounded wait that expired.
	Timeout
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid-argument"
	case InvalidState:
		return "invalid-state"
	case BufferOverflow:
		return "buffer-overflow"
	case Serialization:
		return "serialization"
	case IO:
		return "io"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is a LIME error carrying a Kind alongside the wrapped cause.
type Error struct {
	Kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

// New builds an Error of the given kind with a message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

// Newf builds an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind wrapping a cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, msg: msg, err: err}
}

// Is reports whether the first *Error found in err's chain (the
// outermost one) has the given Kind. Kinds of *Error values wrapped
// beneath it are not consulted.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
