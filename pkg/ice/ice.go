// Package ice carries internal compiler errors.
//
// Selection assumes verified input. When an invariant is broken deep inside
// a pass there is nothing sensible to return to the caller, so the pass
// panics with an *Error and the driver recovers it at the top level.
package ice

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error is an internal compiler error. It wraps an error created with
// github.com/pkg/errors so that %+v prints the stack of the failing pass.
type Error struct {
	err error
}

func (e *Error) Error() string { return "internal compiler error: " + e.err.Error() }

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.err }

// Format implements fmt.Formatter so %+v shows the recorded stack.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "internal compiler error: %+v", e.err)
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}

// Fatalf panics with an internal compiler error.
func Fatalf(format string, args ...interface{}) {
	panic(&Error{err: errors.Errorf(format, args...)})
}

// Catch runs fn and converts an internal compiler error panic into a
// returned error. Other panics are re-raised.
func Catch(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(*Error)
			if !ok {
				panic(r)
			}
			err = e
		}
	}()
	fn()
	return nil
}
