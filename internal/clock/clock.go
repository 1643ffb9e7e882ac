// Package clock provides the time sources used to stamp captured events and
// pace their replay.
package clock

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"linuxmacro/internal/macro"
)

// ErrStopped is returned by a Manual clock that was told to fail.
var ErrStopped = errors.New("clock stopped")

// Manual is a clock that only moves when told to. It is used to drive the
// engine deterministically.
type Manual struct {
	mu   sync.Mutex
	now  macro.Timestamp
	fail error
}

// NewManual returns a manual clock reading start.
func NewManual(start macro.Timestamp) *Manual {
	return &Manual{now: start}
}

// Now returns the current reading, or the configured failure.
func (m *Manual) Now() (macro.Timestamp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return macro.Timestamp{}, m.fail
	}
	return m.now, nil
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := m.now.Nsec + int64(d)
	m.now.Sec += total / int64(time.Second)
	m.now.Nsec = total % int64(time.Second)
	if m.now.Nsec < 0 {
		m.now.Sec--
		m.now.Nsec += int64(time.Second)
	}
}

// Fail makes every following Now call return err. A nil err restores the
// clock.
func (m *Manual) Fail(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}
