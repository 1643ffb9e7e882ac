package engine

import "linuxmacro/internal/macro"

// RawSource delivers captured events without blocking.
type RawSource interface {
	// HasPending reports whether ReadEvent would return an event now.
	HasPending() (bool, error)

	// ReadEvent returns the next event, or ErrWouldBlock when none is ready.
	ReadEvent() (macro.Triple, error)
}

// Sink receives replayed events. Nothing is flushed implicitly: any
// synchronization marker must be written as an ordinary event.
type Sink interface {
	WriteEvent(kind, code uint16, value int32) error
}

// Clock returns monotonic-preferred timestamps.
type Clock interface {
	Now() (macro.Timestamp, error)
}

// Device bundles the handles produced by a device provider. Source or Sink
// return nil when the device lacks that side.
type Device interface {
	Name() string
	Source() RawSource
	Sink() Sink
	Close() error
}
