// Package errors implements the error taxonomy of spec.md §7: each error
// raised by the engine carries a Kind used both to pick the process exit
// code (spec.md §6) and to decide whether the engine aborts or degrades.
package errors

import (
	"fmt"
	"strings"
)

// Kind is the error taxonomy from spec.md §7.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindSource        Kind = "source"
	KindAdvisor       Kind = "advisor"
	KindTransport     Kind = "transport"
	KindParse         Kind = "parse"
	KindHistory       Kind = "history"
)

// TelewatchError is a user-facing error carrying actionable guidance,
// mirroring the teacher's WGOError shape.
type TelewatchError struct {
	Kind      Kind
	Message   string
	Cause     string
	Solutions []string
}

// Error implements the error interface.
func (e *TelewatchError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	if e.Cause != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Cause)
	}
	return sb.String()
}

// New constructs a TelewatchError.
func New(kind Kind, message string) *TelewatchError {
	return &TelewatchError{Kind: kind, Message: message}
}

// WithCause attaches an underlying cause.
func (e *TelewatchError) WithCause(cause error) *TelewatchError {
	if cause != nil {
		e.Cause = cause.Error()
	}
	return e
}

// WithSolutions attaches operator-facing remediation steps.
func (e *TelewatchError) WithSolutions(solutions ...string) *TelewatchError {
	e.Solutions = append(e.Solutions, solutions...)
	return e
}

// IsFatal reports whether this error class should abort the process
// (spec.md §7: "Nothing except configuration errors and startup failure
// aborts the process").
func (e *TelewatchError) IsFatal() bool {
	return e.Kind == KindConfiguration || e.Kind == KindSource
}

// GetExitCode maps an error to the process exit codes in spec.md §6:
// 0 normal shutdown, 2 configuration error, 3 irrecoverable runtime error.
func GetExitCode(err error) int {
	if err == nil {
		return 0
	}
	twErr, ok := err.(*TelewatchError)
	if !ok {
		return 3
	}
	switch twErr.Kind {
	case KindConfiguration:
		return 2
	default:
		return 3
	}
}

// Wrap annotates a plain error with a Kind without losing its message,
// for errors raised deep in a package that don't want to import this one
// back (e.g. adapter startup failures bubbling out of internal/source).
func Wrap(kind Kind, message string, cause error) *TelewatchError {
	return New(kind, message).WithCause(cause)
}

var _ error = (*TelewatchError)(nil)

// Errorf is a convenience constructor matching fmt.Errorf's ergonomics.
func Errorf(kind Kind, format string, args ...interface{}) *TelewatchError {
	return New(kind, fmt.Sprintf(format, args...))
}
