package engine

import (
	"fmt"

	"github.com/pkg/errors"

	"linuxmacro/internal/macro"
)

var (
	// ErrDeviceUnavailable is returned when a transition needs a raw source
	// or a sink and none is attached.
	ErrDeviceUnavailable = errors.New("device unavailable")

	// ErrIOFailure is returned when reading from the source or writing to the
	// sink fails in the middle of a session.
	ErrIOFailure = errors.New("device I/O failure")

	// ErrClockFailure is returned when the current time cannot be read.
	ErrClockFailure = errors.New("clock failure")

	// ErrResourceExhausted is returned when the sequence cannot take another
	// event.
	ErrResourceExhausted = macro.ErrResourceExhausted

	// ErrWouldBlock is returned by a RawSource when no event is ready.
	ErrWouldBlock = errors.New("no event ready")
)

// Error describes a failed engine operation. It matches its Kind with
// errors.Is and unwraps to the underlying cause.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func newError(op string, kind, cause error) *Error {
	return &Error{Op: op, Kind: kind, Err: cause}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}
