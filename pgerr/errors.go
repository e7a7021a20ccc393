// Package pgerr provides the error taxonomy shared by every layer of
// pgflow: frame I/O, the codec, authentication, the SQL client, and the
// replication subscriber all classify failures into one of a small number
// of kinds so callers can make a single decision ("is this retryable",
// "should I close the connection") without inspecting wire details.
package pgerr

import (
	"errors"
	"fmt"
)

// Kind is the top-level classification of a pgflow failure.
type Kind int

const (
	// Unavailable means the server or network could not be reached, or a
	// connection that was working stopped responding (refused connect,
	// EOF mid-frame, wal_sender_timeout, peer shutdown).
	Unavailable Kind = iota
	// Forbidden means authentication or TLS verification failed.
	Forbidden
	// Incorrect means the caller did something the protocol can't
	// represent (encoding an unsupported value, using a closed client).
	// Incorrect errors never touch wire state.
	Incorrect
	// Unsupported means the peer asked for something this client does not
	// implement (an auth method, CopyIn, an unknown message tag).
	Unsupported
	// Fault means the wire protocol desynchronized: a decode error, an
	// I/O error mid-message, or a panic in user code while a response was
	// being parsed. A Fault always closes the connection it occurred on.
	Fault
	// ServerError wraps a server-side ErrorResponse. Wire state remains
	// clean; the exchange ends with a ReadyForQuery.
	ServerError
)

func (k Kind) String() string {
	switch k {
	case Unavailable:
		return "unavailable"
	case Forbidden:
		return "forbidden"
	case Incorrect:
		return "incorrect"
	case Unsupported:
		return "unsupported"
	case Fault:
		return "fault"
	case ServerError:
		return "server-error"
	default:
		return "unknown"
	}
}

// Error is the structured error type returned by every pgflow package.
type Error struct {
	Kind Kind
	Op   string
	Msg  string

	// ServerFields carries the semantic ErrorResponse/NoticeResponse field
	// mapping (severity, code, message, detail, hint, ...) when Kind ==
	// ServerError.
	ServerFields map[string]string

	Cause error
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Op != "" {
		s += " " + e.Op
	}
	s += ": " + e.Msg
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with the given kind and message.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Newf builds an *Error with a formatted message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind/op/msg to an existing error as its cause.
func Wrap(cause error, kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Cause: cause}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(cause error, kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// Server builds a ServerError from a decoded ErrorResponse/NoticeResponse
// field mapping, as built by the caller from a pgproto3.ErrorResponse.
func Server(fields map[string]string) *Error {
	msg := fields["message"]
	if msg == "" {
		msg = "server error"
	}
	return &Error{Kind: ServerError, Op: "server", Msg: msg, ServerFields: fields}
}

// IsDuplicateObject reports whether err is a server error with SQLSTATE
// 42710 (duplicate_object) -- used by sqlclient.IgnoringDupes.
func IsDuplicateObject(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == ServerError && e.ServerFields["code"] == "42710"
}

// OfKind reports whether err (anywhere in its chain) is a *Error of kind k.
func OfKind(err error, k Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == k
}

// Is supports errors.Is.
func Is(err, target error) bool { return errors.Is(err, target) }

// As supports errors.As.
func As(err error, target any) bool { return errors.As(err, target) }
