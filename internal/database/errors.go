package database

import (
	"errors"
	"fmt"
)

// Kind classifies the errors returned by this package.
type Kind int

const (
	KindConfiguration Kind = iota + 1
	KindConnection
	KindExecution
	KindCursor
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration error"
	case KindConnection:
		return "connection error"
	case KindExecution:
		return "execution error"
	case KindCursor:
		return "cursor error"
	default:
		return "unknown error"
	}
}

// Kind sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrConnection    = &Error{Kind: KindConnection}
	ErrExecution     = &Error{Kind: KindExecution}
	ErrCursor        = &Error{Kind: KindCursor}
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrCursorClosed     = errors.New("cursor closed")
	ErrConcurrentUse    = errors.New("connection is in use by another caller")
	ErrLockTimeout      = errors.New("timed out waiting for the database file lock")
)

// Error is the error type returned by Connection and Cursor operations.
// The underlying engine error is kept in the chain.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: failed to %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a kind sentinel matching e.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

func newError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}
