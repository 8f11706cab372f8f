// Package rerr defines the bridge's closed error taxonomy.
//
// Every error the debug-session coordination layer returns is one of the
// four kinds below. Callers classify with [errors.As] rather than string
// matching, the same discipline the teacher's connection helpers used for
// "is this a connection error" checks.
package rerr

import (
	"errors"
	"fmt"
)

// Kind is one of the closed set of error categories from spec §7.
type Kind string

const (
	// KindConnection covers transport failures: refused, broken pipe,
	// socket closed mid-operation.
	KindConnection Kind = "connection"
	// KindSession covers "no such session", "session was reaped", and
	// "process not in the required state" (e.g. not paused).
	KindSession Kind = "session"
	// KindTimeout covers a blocking operation whose deadline elapsed.
	KindTimeout Kind = "timeout"
	// KindProtocol covers a response that didn't parse into the expected
	// shape.
	KindProtocol Kind = "protocol"
)

// Error is the bridge's error type. FinalOutput, when non-empty, is
// diagnostic text the peer sent before the terminal condition was
// observed (spec §7: "Carries final_output when the peer sent diagnostic
// text before the terminal state").
type Error struct {
	Kind        Kind
	Op          string // operation that failed, e.g. "connect", "send_command"
	Msg         string
	FinalOutput string
	Err         error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, rerr.Connection), errors.Is(err, rerr.Timeout), etc.
// work against a bare Kind sentinel constructed with New.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	if other.Msg != "" {
		return false // a fully-specified error compares by identity only
	}
	return e.Kind == other.Kind
}

// sentinel constructs a comparison-only *Error carrying just a Kind, for
// use with errors.Is.
func sentinel(k Kind) *Error { return &Error{Kind: k} }

// Sentinels for errors.Is comparisons: errors.Is(err, rerr.Connection).
var (
	Connection = sentinel(KindConnection)
	Session    = sentinel(KindSession)
	Timeout    = sentinel(KindTimeout)
	Protocol   = sentinel(KindProtocol)
)

// New constructs an *Error of the given kind.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Newf is New with fmt.Sprintf formatting.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return New(kind, op, fmt.Sprintf(format, args...))
}

// Wrap wraps an underlying error as the given kind, preserving it for
// errors.Unwrap/errors.As.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Msg: err.Error(), Err: err}
}

// WithFinalOutput attaches buffered peer output to an error and returns it.
func (e *Error) WithFinalOutput(output string) *Error {
	e.FinalOutput = output
	return e
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, and false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
