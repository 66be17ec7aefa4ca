// Package apperr defines the control session's error taxonomy.
//
// Every handler in internal/session returns one of these kinds instead of
// an ad-hoc error; the dispatcher maps a Kind straight to a process exit
// code (see Kind.ExitCode).
package apperr

import "fmt"

// Kind identifies one of the fixed error categories a handler can fail
// with. The numeric values are the process exit codes themselves.
type Kind int

const (
	// Nominal is not an error; it is exported for symmetry with ExitCode.
	Nominal Kind = 0

	BadConnection Kind = 1
	BadStatus     Kind = 2
	BadFile       Kind = 3
	BadJSON       Kind = 4
	BadCommand    Kind = 5
	BadPatch      Kind = 6
	BadPointer    Kind = 7
	BadHeader     Kind = 8
)

func (k Kind) String() string {
	switch k {
	case Nominal:
		return "nominal"
	case BadConnection:
		return "bad_connection"
	case BadStatus:
		return "bad_status"
	case BadFile:
		return "bad_file"
	case BadJSON:
		return "bad_json"
	case BadCommand:
		return "bad_command"
	case BadPatch:
		return "bad_patch"
	case BadPointer:
		return "bad_pointer"
	case BadHeader:
		return "bad_header"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ExitCode returns the process exit code a Kind maps to. It is simply the
// underlying int, but named for call sites that shouldn't care that the
// two happen to be the same value.
func (k Kind) ExitCode() int { return int(k) }

// Error is the typed error every handler returns on failure. It carries an
// optional Cause so diagnostics can unwrap to the underlying transport or
// encoding error without a second error type.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no underlying cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap builds an *Error around an underlying cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func BadConnectionf(cause error, format string, args ...any) *Error {
	return Wrap(BadConnection, fmt.Sprintf(format, args...), cause)
}

func BadStatusf(format string, args ...any) *Error {
	return New(BadStatus, fmt.Sprintf(format, args...))
}

func BadFilef(cause error, format string, args ...any) *Error {
	return Wrap(BadFile, fmt.Sprintf(format, args...), cause)
}

func BadJSONf(cause error, format string, args ...any) *Error {
	return Wrap(BadJSON, fmt.Sprintf(format, args...), cause)
}

func BadCommandf(format string, args ...any) *Error {
	return New(BadCommand, fmt.Sprintf(format, args...))
}

func BadPatchf(cause error, format string, args ...any) *Error {
	return Wrap(BadPatch, fmt.Sprintf(format, args...), cause)
}

func BadPointerf(format string, args ...any) *Error {
	return New(BadPointer, fmt.Sprintf(format, args...))
}

func BadHeaderf(format string, args ...any) *Error {
	return New(BadHeader, fmt.Sprintf(format, args...))
}

// As reports whether err is an *Error and returns it.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}
