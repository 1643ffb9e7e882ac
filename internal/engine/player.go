package engine

import (
	"time"

	"github.com/sirupsen/logrus"

	"linuxmacro/internal/macro"
)

// Cursor is the playback position in a sequence. An unset cursor means
// playback starts from the head.
type Cursor struct {
	pos int
	set bool
}

// Position returns the index of the next event to emit and whether the
// cursor is set.
func (c *Cursor) Position() (int, bool) {
	return c.pos, c.set
}

// Unset rewinds the cursor to the head of the sequence.
func (c *Cursor) Unset() {
	c.pos, c.set = 0, false
}

func (c *Cursor) next() int {
	if !c.set {
		return 0
	}
	return c.pos
}

func (c *Cursor) advance() {
	c.pos = c.next() + 1
	c.set = true
}

// SkipPolicy decides whether the player drops an event it is already too
// late for. A zero Margin disables dropping: every event is emitted no
// matter how late.
type SkipPolicy struct {
	// Margin is how far past its recorded delay an event may be before it is
	// dropped instead of emitted.
	Margin time.Duration
}

// Enabled reports whether late events are dropped.
func (p SkipPolicy) Enabled() bool {
	return p.Margin > 0
}

// Player emits the events of a sequence to a sink, waiting for at least the
// recorded delay between consecutive emissions.
type Player struct {
	clock   Clock
	skip    SkipPolicy
	trailer *macro.Triple
	log     *logrus.Entry

	// last is the time the previous event was actually emitted.
	last    macro.Timestamp
	fresh   bool
	skipped int
}

// NewPlayer creates a player. When trailer is not nil it is written to the
// sink once the last event of the sequence has been emitted.
func NewPlayer(clock Clock, skip SkipPolicy, trailer *macro.Triple, log *logrus.Entry) *Player {
	return &Player{
		clock:   clock,
		skip:    skip,
		trailer: trailer,
		log:     log,
	}
}

// Begin starts a playback session. The first tick anchors the pacing clock.
func (p *Player) Begin() {
	p.fresh = true
}

// Skipped returns how many events the skip policy has dropped.
func (p *Player) Skipped() int {
	return p.skipped
}

func (p *Player) resetSkipped() {
	p.skipped = 0
}

// Wait returns how long until the event at the cursor is due. It reports
// false when the pacing clock is not anchored yet, the sequence is exhausted
// or the clock cannot be read.
func (p *Player) Wait(seq *macro.Sequence, cur *Cursor) (time.Duration, bool) {
	if p.fresh {
		return 0, false
	}
	ev, ok := seq.At(cur.next())
	if !ok {
		return 0, false
	}
	now, err := p.clock.Now()
	if err != nil {
		return 0, false
	}
	elapsed := now.Sub(p.last)
	if elapsed.Compare(ev.Delay) >= 0 {
		return 0, true
	}
	return ev.Delay.Duration() - elapsed.Duration(), true
}

// Tick emits at most one event. It reports done when there is nothing left
// to play.
func (p *Player) Tick(seq *macro.Sequence, cur *Cursor, sink Sink) (bool, error) {
	pos := cur.next()
	if sink == nil || pos >= seq.Len() {
		return true, nil
	}

	now, err := p.clock.Now()
	if err != nil {
		return false, newError("read clock", ErrClockFailure, err)
	}

	ev, _ := seq.At(pos)

	if p.fresh {
		p.fresh = false
		p.last = now
		if pos == 0 {
			// the head event carries no delay
			return p.emit(seq, cur, sink, ev, now)
		}
	}

	elapsed := now.Sub(p.last)
	if elapsed.Compare(ev.Delay) < 0 {
		return false, nil
	}

	if p.skip.Enabled() && elapsed.Compare(ev.Delay.Add(macro.DelayOf(p.skip.Margin))) > 0 {
		p.skipped++
		p.last = now
		cur.advance()
		p.log.WithFields(logrus.Fields{
			"index":   pos,
			"delay":   ev.Delay,
			"elapsed": elapsed,
			"margin":  p.skip.Margin,
		}).Warn("Dropped late event")
		return p.finished(seq, cur, sink)
	}

	return p.emit(seq, cur, sink, ev, now)
}

func (p *Player) emit(seq *macro.Sequence, cur *Cursor, sink Sink, ev macro.Event, now macro.Timestamp) (bool, error) {
	pos := cur.next()
	if err := sink.WriteEvent(ev.Kind, ev.Code, ev.Value); err != nil {
		return false, newError("write event", ErrIOFailure, err)
	}
	p.last = now
	cur.advance()

	p.log.WithFields(logrus.Fields{
		"type":  ev.Kind,
		"code":  ev.Code,
		"value": ev.Value,
		"index": pos,
	}).Debug("Emitted event")

	return p.finished(seq, cur, sink)
}

func (p *Player) finished(seq *macro.Sequence, cur *Cursor, sink Sink) (bool, error) {
	if cur.next() < seq.Len() {
		return false, nil
	}
	if p.trailer != nil {
		t := *p.trailer
		if err := sink.WriteEvent(t.Kind, t.Code, t.Value); err != nil {
			return false, newError("write trailer", ErrIOFailure, err)
		}
	}
	return true, nil
}
