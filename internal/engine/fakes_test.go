package engine

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"linuxmacro/internal/clock"
	"linuxmacro/internal/macro"
)

func testLogger(t *testing.T) *logrus.Entry {
	t.Helper()
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// fakeSource hands out queued triples, one per read.
type fakeSource struct {
	queue   []macro.Triple
	pollErr error
	readErr error
	block   bool
	polls   int
}

func (s *fakeSource) push(ts ...macro.Triple) {
	s.queue = append(s.queue, ts...)
}

func (s *fakeSource) HasPending() (bool, error) {
	s.polls++
	if s.pollErr != nil {
		return false, s.pollErr
	}
	return len(s.queue) > 0 || s.block, nil
}

func (s *fakeSource) ReadEvent() (macro.Triple, error) {
	if s.readErr != nil {
		return macro.Triple{}, s.readErr
	}
	if s.block || len(s.queue) == 0 {
		return macro.Triple{}, ErrWouldBlock
	}
	t := s.queue[0]
	s.queue = s.queue[1:]
	return t, nil
}

type emission struct {
	triple macro.Triple
	at     macro.Timestamp
}

// fakeSink records every write with the clock reading at write time.
type fakeSink struct {
	clock    *clock.Manual
	written  []emission
	writeErr error
}

func (s *fakeSink) WriteEvent(kind, code uint16, value int32) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	now, _ := s.clock.Now()
	s.written = append(s.written, emission{
		triple: macro.Triple{Kind: kind, Code: code, Value: value},
		at:     now,
	})
	return nil
}

func (s *fakeSink) triples() []macro.Triple {
	out := make([]macro.Triple, len(s.written))
	for i, e := range s.written {
		out[i] = e.triple
	}
	return out
}

type fakeDevice struct {
	name   string
	source *fakeSource
	sink   *fakeSink
	closed int
}

func (d *fakeDevice) Name() string { return d.name }

func (d *fakeDevice) Source() RawSource {
	if d.source == nil {
		return nil
	}
	return d.source
}

func (d *fakeDevice) Sink() Sink {
	if d.sink == nil {
		return nil
	}
	return d.sink
}

func (d *fakeDevice) Close() error {
	d.closed++
	return nil
}

func newFakeDevice(name string, clk *clock.Manual) *fakeDevice {
	return &fakeDevice{
		name:   name,
		source: &fakeSource{},
		sink:   &fakeSink{clock: clk},
	}
}

func triple(kind, code uint16, value int32) macro.Triple {
	return macro.Triple{Kind: kind, Code: code, Value: value}
}
