package macro

import "time"

const nsPerSec = int64(time.Second)

// Timestamp is a clock reading split into whole seconds and a nanosecond
// remainder. Readings come from a monotonic clock, so only differences
// between two timestamps are meaningful.
type Timestamp struct {
	Sec  int64
	Nsec int64
}

// Sub returns the delay elapsed between u and t. The nanosecond field of the
// result is borrowed from the seconds field until it lies in [0, 1e9). A
// reading that went backwards yields a zero delay.
func (t Timestamp) Sub(u Timestamp) Delay {
	return normalize(t.Sec-u.Sec, t.Nsec-u.Nsec)
}

// Delay is the time elapsed between two captured events. Nsec is always in
// [0, 1e9) and the delay is never negative.
type Delay struct {
	Sec  int64 `json:"sec"`
	Nsec int64 `json:"nsec"`
}

// DelayOf converts a duration into a normalized delay. Negative durations
// become zero.
func DelayOf(d time.Duration) Delay {
	return normalize(0, int64(d))
}

func normalize(sec, nsec int64) Delay {
	sec += nsec / nsPerSec
	nsec %= nsPerSec
	if nsec < 0 {
		sec--
		nsec += nsPerSec
	}
	if sec < 0 {
		return Delay{}
	}
	return Delay{Sec: sec, Nsec: nsec}
}

// Valid reports whether d is normalized.
func (d Delay) Valid() bool {
	return d.Sec >= 0 && d.Nsec >= 0 && d.Nsec < nsPerSec
}

// IsZero reports whether no time elapsed.
func (d Delay) IsZero() bool {
	return d.Sec == 0 && d.Nsec == 0
}

// Nanoseconds returns the delay as a single nanosecond count.
func (d Delay) Nanoseconds() int64 {
	return d.Sec*nsPerSec + d.Nsec
}

// Duration converts the delay to a time.Duration.
func (d Delay) Duration() time.Duration {
	return time.Duration(d.Nanoseconds())
}

// Add returns the normalized sum of two delays.
func (d Delay) Add(o Delay) Delay {
	return normalize(d.Sec+o.Sec, d.Nsec+o.Nsec)
}

// Compare returns -1, 0 or +1 depending on whether d is shorter than, equal
// to, or longer than o.
func (d Delay) Compare(o Delay) int {
	switch {
	case d.Sec < o.Sec:
		return -1
	case d.Sec > o.Sec:
		return 1
	case d.Nsec < o.Nsec:
		return -1
	case d.Nsec > o.Nsec:
		return 1
	}
	return 0
}

func (d Delay) String() string {
	return d.Duration().String()
}
