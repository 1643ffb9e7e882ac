// Package engine records input events into a sequence and replays them with
// their original timing.
//
// The engine owns no loop. A host calls Session.Tick repeatedly from a
// single goroutine, and issues commands from that same goroutine between
// ticks. Tick never blocks: it polls the raw source instead of reading it,
// and it returns instead of sleeping while a replayed event is not due yet.
package engine

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"linuxmacro/internal/clock"
	"linuxmacro/internal/macro"
)

// Options configures a Session.
type Options struct {
	// Clock defaults to the monotonic system clock.
	Clock Clock

	// Logger defaults to the standard logrus logger.
	Logger *logrus.Entry

	// MaxEvents bounds the sequence. Zero means unbounded.
	MaxEvents int

	// Skip is the late-event policy of the player.
	Skip SkipPolicy

	// Trailer is written once after the last event of a playback.
	Trailer *macro.Triple
}

// Session is the Idle / Recording / Playing control automaton. It owns the
// attached device, the event sequence and the playback cursor.
//
// A Session is not safe for concurrent use.
type Session struct {
	state    State
	seq      *macro.Sequence
	cursor   Cursor
	device   Device
	recorder *Recorder
	player   *Player
	limit    int
	lastErr  error
	onState  func(State)
	log      *logrus.Entry
}

// NewSession creates an idle session with an empty sequence and no device.
func NewSession(opts Options) *Session {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Monotonic{}
	}
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Session{
		state:    Idle,
		seq:      macro.NewSequence(opts.MaxEvents),
		recorder: NewRecorder(clk, log),
		player:   NewPlayer(clk, opts.Skip, opts.Trailer, log),
		limit:    opts.MaxEvents,
		log:      log,
	}
}

// SetOnStateChange registers a function called after every state change.
func (s *Session) SetOnStateChange(fn func(State)) {
	s.onState = fn
}

// Tick advances the session by one scheduling step. It is a no-op while
// idle. Any error moves the session to Idle and is also kept as LastError.
func (s *Session) Tick() error {
	switch s.state {
	case Recording:
		if err := s.recorder.Tick(s.source(), s.seq); err != nil {
			return s.fail(err)
		}

	case Playing:
		done, err := s.player.Tick(s.seq, &s.cursor, s.sink())
		if err != nil {
			return s.fail(err)
		}
		if done {
			s.log.WithField("events", s.seq.Len()).Info("Playback finished")
			s.cursor.Unset()
			s.setState(Idle)
		}
	}
	return nil
}

// StartRecording enters Recording, stopping playback first. New events are
// appended to the existing sequence.
func (s *Session) StartRecording() error {
	if s.state == Recording {
		return nil
	}
	if s.source() == nil {
		return newError("start recording", ErrDeviceUnavailable, nil)
	}
	s.forceIdle()
	s.recorder.Begin()
	s.lastErr = nil
	s.setState(Recording)
	return nil
}

// StopRecording returns to Idle if recording.
func (s *Session) StopRecording() error {
	if s.state == Recording {
		s.setState(Idle)
	}
	return nil
}

// StartPlaying enters Playing, stopping a recording first. Playback resumes
// at the cursor, or starts at the head if the cursor is unset.
func (s *Session) StartPlaying() error {
	if s.state == Playing {
		return nil
	}
	if s.sink() == nil {
		return newError("start playing", ErrDeviceUnavailable, nil)
	}
	s.forceIdle()
	if _, set := s.cursor.Position(); !set {
		s.player.resetSkipped()
	}
	s.player.Begin()
	s.lastErr = nil
	s.setState(Playing)
	return nil
}

// StopPlaying returns to Idle if playing. The cursor is kept so a later
// StartPlaying resumes where playback stopped.
func (s *Session) StopPlaying() error {
	if s.state == Playing {
		s.setState(Idle)
	}
	return nil
}

// Clear stops any activity, discards every captured event and unsets the
// cursor.
func (s *Session) Clear() error {
	s.forceIdle()
	s.seq.Clear()
	s.cursor.Unset()
	s.player.resetSkipped()
	return nil
}

// Reset rewinds the cursor to the head without discarding events.
func (s *Session) Reset() error {
	if s.state == Playing {
		s.setState(Idle)
	}
	s.cursor.Unset()
	return nil
}

// LoadDevice stops any activity and swaps the attached device. The previous
// device is closed before dev is accepted. The sequence and the cursor are
// kept. A nil dev detaches the current device.
func (s *Session) LoadDevice(dev Device) error {
	s.forceIdle()
	if s.device != nil {
		name := s.device.Name()
		if err := s.device.Close(); err != nil {
			s.log.WithError(err).WithField("device", name).Warn("Failed to close device")
		}
	}
	s.device = dev
	if dev != nil {
		s.log.WithFields(logrus.Fields{
			"device":  dev.Name(),
			"capture": dev.Source() != nil,
			"replay":  dev.Sink() != nil,
		}).Info("Device loaded")
	}
	return nil
}

// LoadSequence stops any activity and replaces the captured events. The
// session is left untouched when events are rejected.
func (s *Session) LoadSequence(events []macro.Event) error {
	seq := macro.NewSequence(s.limit)
	if err := seq.Replace(events); err != nil {
		return errors.Wrap(err, "load sequence")
	}
	s.forceIdle()
	s.seq = seq
	s.cursor.Unset()
	s.player.resetSkipped()
	return nil
}

// Close detaches and closes the current device.
func (s *Session) Close() error {
	s.forceIdle()
	if s.device == nil {
		return nil
	}
	err := s.device.Close()
	s.device = nil
	return err
}

// State returns the current control state.
func (s *Session) State() State {
	return s.state
}

// SequenceLength returns the number of captured events.
func (s *Session) SequenceLength() int {
	return s.seq.Len()
}

// CursorPosition returns the index of the next event to play and whether
// the cursor is set.
func (s *Session) CursorPosition() (int, bool) {
	return s.cursor.Position()
}

// Snapshot returns a copy of the captured events.
func (s *Session) Snapshot() []macro.Event {
	return s.seq.Events()
}

// LastError returns the error that last stopped a session, if any.
func (s *Session) LastError() error {
	return s.lastErr
}

// PlaybackWait returns how long until the next event is due while playing.
// It reports false in any other state or when no wait is known yet.
func (s *Session) PlaybackWait() (time.Duration, bool) {
	if s.state != Playing || s.sink() == nil {
		return 0, false
	}
	return s.player.Wait(s.seq, &s.cursor)
}

// Skipped returns how many late events playback has dropped since the
// sequence was loaded or playback last started from the head.
func (s *Session) Skipped() int {
	return s.player.Skipped()
}

// DeviceName returns the name of the attached device, or "".
func (s *Session) DeviceName() string {
	if s.device == nil {
		return ""
	}
	return s.device.Name()
}

func (s *Session) source() RawSource {
	if s.device == nil {
		return nil
	}
	return s.device.Source()
}

func (s *Session) sink() Sink {
	if s.device == nil {
		return nil
	}
	return s.device.Sink()
}

func (s *Session) forceIdle() {
	s.setState(Idle)
}

func (s *Session) fail(err error) error {
	s.lastErr = err
	s.log.WithError(err).WithField("state", s.state).Error("Session stopped")
	s.setState(Idle)
	return err
}

func (s *Session) setState(st State) {
	if s.state == st {
		return
	}
	s.log.WithFields(logrus.Fields{"from": s.state, "to": st}).Info("State change")
	s.state = st
	if s.onState != nil {
		s.onState(st)
	}
}
