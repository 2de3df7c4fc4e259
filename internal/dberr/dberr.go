// Package dberr defines the error taxonomy shared by the pesadb engine.
// Every fallible engine operation returns an *Error so callers can branch
// on the kind with errors.As without parsing messages.
package dberr

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error.
type Kind int

const (
	// KindLex is an unexpected character during tokenization.
	KindLex Kind = iota
	// KindParse is an unexpected token or premature end of statement.
	KindParse
	// KindSchema is a type mismatch, missing column, duplicate column,
	// missing primary key, or invalid type name.
	KindSchema
	// KindConstraint is a unique/primary-key duplicate, a missing
	// foreign-key target, or a referential action blocked by RESTRICT.
	KindConstraint
	// KindLookup is a database, table, or column that does not exist.
	KindLookup
	// KindExecution is a disallowed feature combination or a
	// type-incompatible operation at execution time.
	KindExecution
	// KindIO is a snapshot read or write failure.
	KindIO
)

var kindNames = map[Kind]string{
	KindLex:        "lex error",
	KindParse:      "parse error",
	KindSchema:     "schema error",
	KindConstraint: "constraint violation",
	KindLookup:     "lookup error",
	KindExecution:  "execution error",
	KindIO:         "io error",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("error kind %d", int(k))
}

// Error is a classified engine error. The message is a single line and
// safe to surface to callers.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and context to an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// IsKind reports whether err is (or wraps) an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// KindOf returns the kind of err, or KindExecution when err carries no
// classification.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindExecution
}
