package helper

import (
	"fmt"
	"strings"
)

// Error wraps an original error with the chain of operations it passed through.
// The innermost operation comes first in Trace.
type Error struct {
	Original error
	Trace    []string
}

// NewError wraps err with the operation name. Wrapping an Error appends to its trace
// instead of nesting, so the message stays readable. A nil err returns nil.
func NewError(trace string, err error) error {
	if err == nil {
		return nil
	}

	if e, ok := err.(Error); ok {
		t := make([]string, len(e.Trace), len(e.Trace)+1)
		copy(t, e.Trace)
		return Error{
			Original: e.Original,
			Trace:    append(t, trace),
		}
	}

	return Error{
		Original: err,
		Trace:    []string{trace},
	}
}

func (e Error) Error() string {
	return fmt.Sprintf("%v | trace: %s", e.Original, strings.Join(e.Trace, " <- "))
}

// Unwrap returns the original error so errors.Is and errors.As see through the trace.
func (e Error) Unwrap() error {
	return e.Original
}
