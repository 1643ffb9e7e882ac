//go:build linux

package clock

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"linuxmacro/internal/macro"
)

// Monotonic reads CLOCK_MONOTONIC, which is unaffected by wall-clock
// adjustments made while a macro is being recorded or replayed.
type Monotonic struct{}

// Now returns the current monotonic reading.
func (Monotonic) Now() (macro.Timestamp, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return macro.Timestamp{}, errors.Wrap(err, "clock_gettime")
	}
	return macro.Timestamp{Sec: int64(ts.Sec), Nsec: int64(ts.Nsec)}, nil
}
