package engine

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"linuxmacro/internal/macro"
)

// Recorder appends events read from a raw source to a sequence, stamping
// each with the time elapsed since the previous capture.
type Recorder struct {
	clock Clock
	log   *logrus.Entry

	// last is the capture time of the previous event of this recording
	// session. It is only meaningful once started is set.
	last    macro.Timestamp
	started bool
}

// NewRecorder creates a recorder reading time from clock.
func NewRecorder(clock Clock, log *logrus.Entry) *Recorder {
	return &Recorder{clock: clock, log: log}
}

// Begin starts a new recording session. The next captured event gets a zero
// delay.
func (r *Recorder) Begin() {
	r.started = false
	r.last = macro.Timestamp{}
}

// Tick captures at most one event. It returns immediately when the source
// has nothing pending.
func (r *Recorder) Tick(src RawSource, seq *macro.Sequence) error {
	if src == nil {
		return newError("record", ErrDeviceUnavailable, nil)
	}

	pending, err := src.HasPending()
	if err != nil {
		return newError("poll source", ErrIOFailure, err)
	}
	if !pending {
		return nil
	}

	triple, err := src.ReadEvent()
	if errors.Is(err, ErrWouldBlock) {
		return nil
	}
	if err != nil {
		return newError("read event", ErrIOFailure, err)
	}

	now, err := r.clock.Now()
	if err != nil {
		return newError("read clock", ErrClockFailure, err)
	}

	var delay macro.Delay
	if r.started {
		delay = now.Sub(r.last)
	}

	ev := macro.Event{Triple: triple, Delay: delay}
	if err := seq.Append(ev); err != nil {
		return newError("append event", ErrResourceExhausted, err)
	}

	r.last = now
	r.started = true

	r.log.WithFields(logrus.Fields{
		"type":  triple.Kind,
		"code":  triple.Code,
		"value": triple.Value,
		"delay": delay,
		"index": seq.Len() - 1,
	}).Debug("Captured event")

	return nil
}
