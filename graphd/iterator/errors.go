package iterator

import (
	"errors"
	"fmt"
)

var (
	// ErrMore is cooperative suspension: the budget ran out before a
	// result was ready. Call again with a fresh budget.
	ErrMore = errors.New("iterator: budget exhausted, call again")

	// ErrNo is a definitive negative: EOF from next/find, or not a member
	// for check.
	ErrNo = errors.New("iterator: no")

	// ErrLexical marks cursor text that does not tokenize
	ErrLexical = errors.New("cursor: lexical error")

	// ErrSemantics marks cursor text that tokenizes but means nothing valid
	ErrSemantics = errors.New("cursor: semantics error")

	// ErrStateLost marks a valid cursor whose opaque state cannot be
	// recovered; the caller may restart from the last known position.
	ErrStateLost = errors.New("cursor: state lost, please recover")

	// ErrTooHard is returned when the request deadline passes during
	// creation or thaw.
	ErrTooHard = errors.New("iterator: too hard")

	// ErrNotSorted is returned by find on an unsorted iterator
	ErrNotSorted = errors.New("iterator: find on unsorted iterator")

	// ErrFinished is returned by operations on a finished iterator
	ErrFinished = errors.New("iterator: already finished")
)

// IsMore reports whether err is a cooperative suspension
func IsMore(err error) bool {
	return errors.Is(err, ErrMore)
}

// IsNo reports whether err is a definitive negative
func IsNo(err error) bool {
	return errors.Is(err, ErrNo)
}

// CursorError describes a malformed cursor
type CursorError struct {
	Kind   error  // ErrLexical or ErrSemantics
	Offset int    // byte offset into Text
	Text   string // the cursor text being parsed
	Msg    string
}

// Error returns the message with the offending position marked
func (e *CursorError) Error() string {
	text := e.Text
	if len(text) > 80 {
		start := e.Offset - 40
		if start < 0 {
			start = 0
		}
		end := start + 80
		if end > len(text) {
			end = len(text)
		}
		text = text[start:end]
	}
	return fmt.Sprintf("%v at offset %d: %s (in %q)", e.Kind, e.Offset, e.Msg, text)
}

// Unwrap returns the error kind
func (e *CursorError) Unwrap() error {
	return e.Kind
}

// InvariantError is the panic value for impossible internal states
type InvariantError struct {
	Msg string
}

// Error returns the message
func (e *InvariantError) Error() string {
	return "iterator invariant violated: " + e.Msg
}

// invariant panics with an *InvariantError
func invariant(format string, args ...interface{}) {
	panic(&InvariantError{Msg: fmt.Sprintf(format, args...)})
}
