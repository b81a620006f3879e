// Package internalerr defines the error taxonomy for the runner. Every
// failure the engine raises on purpose is an *Error with a Kind; the CLI
// catches those and prints a concise message, anything else is a defect.
package internalerr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind int

const (
	// KindConfig covers bad or inconsistent configuration, detected
	// during loading, validation or planning.
	KindConfig Kind = iota
	// KindParse covers malformed input records.
	KindParse
	// KindData covers runtime lookup failures that signal an internal
	// inconsistency, such as a document referenced but not stored.
	KindData
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindParse:
		return "parse"
	case KindData:
		return "data"
	}
	return "unknown"
}

// Error is the root error type for the runner.
type Error struct {
	Kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// Message returns the error text without the wrapped cause.
func (e *Error) Message() string { return e.msg }

// Config creates a configuration error.
func Config(format string, args ...any) error {
	return &Error{Kind: KindConfig, msg: fmt.Sprintf(format, args...)}
}

// Parse creates a parse error for malformed input records.
func Parse(format string, args ...any) error {
	return &Error{Kind: KindParse, msg: fmt.Sprintf(format, args...)}
}

// Data creates a data error for internal consistency failures.
func Data(format string, args ...any) error {
	return &Error{Kind: KindData, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new error of the given kind.
func Wrap(kind Kind, err error, format string, args ...any) error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...), err: err}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// IsAppError reports whether err originates from the runner's taxonomy.
func IsAppError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
