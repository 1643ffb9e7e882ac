//go:build !linux

package clock

import (
	"time"

	"linuxmacro/internal/macro"
)

var base = time.Now()

// Monotonic derives readings from the monotonic component of time.Now on
// platforms without clock_gettime.
type Monotonic struct{}

// Now returns the time elapsed since process start.
func (Monotonic) Now() (macro.Timestamp, error) {
	d := time.Since(base)
	return macro.Timestamp{Sec: int64(d / time.Second), Nsec: int64(d % time.Second)}, nil
}
