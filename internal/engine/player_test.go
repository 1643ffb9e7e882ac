package engine

import (
	"math/rand"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linuxmacro/internal/clock"
	"linuxmacro/internal/macro"
)

func sequenceOf(t *testing.T, events ...macro.Event) *macro.Sequence {
	t.Helper()
	seq := macro.NewSequence(0)
	require.NoError(t, seq.Replace(events))
	return seq
}

func ev(kind, code uint16, value int32, delay time.Duration) macro.Event {
	return macro.Event{Triple: triple(kind, code, value), Delay: macro.DelayOf(delay)}
}

// drive ticks p every interval until it reports done or maxTicks pass.
func drive(t *testing.T, p *Player, seq *macro.Sequence, cur *Cursor, sink Sink, clk *clock.Manual, interval time.Duration, maxTicks int) {
	t.Helper()
	for i := 0; i < maxTicks; i++ {
		done, err := p.Tick(seq, cur, sink)
		require.NoError(t, err)
		if done {
			return
		}
		clk.Advance(interval)
	}
	t.Fatalf("playback did not finish within %d ticks", maxTicks)
}

func TestPlayerRecordedScenario(t *testing.T) {
	const tick = 10 * time.Millisecond
	clk := clock.NewManual(macro.Timestamp{Sec: 7})
	sink := &fakeSink{clock: clk}
	p := NewPlayer(clk, SkipPolicy{}, nil, testLogger(t))
	seq := sequenceOf(t,
		ev(1, 1, 1, 0),
		ev(1, 1, 0, 120*time.Millisecond),
		ev(2, 5, 0, 40*time.Millisecond),
	)
	var cur Cursor

	p.Begin()
	drive(t, p, seq, &cur, sink, clk, tick, 100)

	require.Len(t, sink.written, 3)
	assert.Equal(t, []macro.Triple{triple(1, 1, 1), triple(1, 1, 0), triple(2, 5, 0)}, sink.triples())

	for i := 1; i < len(sink.written); i++ {
		recorded, _ := seq.At(i)
		gap := sink.written[i].at.Sub(sink.written[i-1].at)
		assert.GreaterOrEqual(t, gap.Compare(recorded.Delay), 0, "event %d emitted early", i)
		assert.Less(t, gap.Compare(recorded.Delay.Add(macro.DelayOf(tick))), 0, "event %d emitted too late", i)
	}
	assert.Equal(t, 3, cur.next())
}

func TestPlayerNeverEarly(t *testing.T) {
	const tick = 3 * time.Millisecond
	rng := rand.New(rand.NewSource(42))
	events := []macro.Event{ev(4, 4, 1, 0)}
	for i := 0; i < 50; i++ {
		events = append(events, ev(1, uint16(i), 1, time.Duration(rng.Intn(200))*time.Millisecond))
	}
	clk := clock.NewManual(macro.Timestamp{Sec: 1, Nsec: 999_000_000})
	sink := &fakeSink{clock: clk}
	p := NewPlayer(clk, SkipPolicy{}, nil, testLogger(t))
	seq := sequenceOf(t, events...)
	var cur Cursor

	p.Begin()
	drive(t, p, seq, &cur, sink, clk, tick, 10_000)

	require.Len(t, sink.written, len(events))
	for i := 1; i < len(sink.written); i++ {
		gap := sink.written[i].at.Sub(sink.written[i-1].at)
		assert.GreaterOrEqual(t, gap.Compare(events[i].Delay), 0, "event %d emitted early", i)
	}
}

func TestPlayerEmptySequence(t *testing.T) {
	clk := clock.NewManual(macro.Timestamp{})
	sink := &fakeSink{clock: clk}
	trailer := triple(0, 0, 0)
	p := NewPlayer(clk, SkipPolicy{}, &trailer, testLogger(t))
	var cur Cursor

	p.Begin()
	done, err := p.Tick(macro.NewSequence(0), &cur, sink)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Empty(t, sink.written)
}

func TestPlayerResumeWaitsForDelay(t *testing.T) {
	clk := clock.NewManual(macro.Timestamp{})
	sink := &fakeSink{clock: clk}
	p := NewPlayer(clk, SkipPolicy{}, nil, testLogger(t))
	seq := sequenceOf(t, ev(1, 1, 1, 0), ev(1, 2, 1, 50*time.Millisecond))
	cur := Cursor{pos: 1, set: true}

	p.Begin()
	done, err := p.Tick(seq, &cur, sink)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Empty(t, sink.written)

	clk.Advance(49 * time.Millisecond)
	done, err = p.Tick(seq, &cur, sink)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Empty(t, sink.written)

	clk.Advance(time.Millisecond)
	done, err = p.Tick(seq, &cur, sink)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, []macro.Triple{triple(1, 2, 1)}, sink.triples())
}

func TestPlayerTrailer(t *testing.T) {
	clk := clock.NewManual(macro.Timestamp{})
	sink := &fakeSink{clock: clk}
	trailer := triple(0, 0, 0)
	p := NewPlayer(clk, SkipPolicy{}, &trailer, testLogger(t))
	seq := sequenceOf(t, ev(1, 1, 1, 0), ev(1, 1, 0, 0))
	var cur Cursor

	p.Begin()
	drive(t, p, seq, &cur, sink, clk, time.Millisecond, 10)

	assert.Equal(t, []macro.Triple{triple(1, 1, 1), triple(1, 1, 0), trailer}, sink.triples())
}

func TestPlayerWriteFailureKeepsCursor(t *testing.T) {
	clk := clock.NewManual(macro.Timestamp{})
	sinkErr := errors.New("broken pipe")
	sink := &fakeSink{clock: clk, writeErr: sinkErr}
	p := NewPlayer(clk, SkipPolicy{}, nil, testLogger(t))
	seq := sequenceOf(t, ev(1, 1, 1, 0))
	var cur Cursor

	p.Begin()
	done, err := p.Tick(seq, &cur, sink)
	assert.False(t, done)
	assert.True(t, errors.Is(err, ErrIOFailure))
	assert.True(t, errors.Is(err, sinkErr))
	assert.Equal(t, 0, cur.next())
}

func TestPlayerClockFailure(t *testing.T) {
	clk := clock.NewManual(macro.Timestamp{})
	clk.Fail(clock.ErrStopped)
	sink := &fakeSink{clock: clk}
	p := NewPlayer(clk, SkipPolicy{}, nil, testLogger(t))
	var cur Cursor

	p.Begin()
	_, err := p.Tick(sequenceOf(t, ev(1, 1, 1, 0)), &cur, sink)
	assert.True(t, errors.Is(err, ErrClockFailure))
	assert.Empty(t, sink.written)
}

func TestPlayerSkipPolicy(t *testing.T) {
	seqEvents := []macro.Event{
		ev(1, 1, 1, 0),
		ev(1, 2, 1, 10*time.Millisecond),
		ev(1, 3, 1, 10*time.Millisecond),
	}

	t.Run("disabled emits late events", func(t *testing.T) {
		clk := clock.NewManual(macro.Timestamp{})
		sink := &fakeSink{clock: clk}
		p := NewPlayer(clk, SkipPolicy{}, nil, testLogger(t))
		seq := sequenceOf(t, seqEvents...)
		var cur Cursor

		p.Begin()
		drive(t, p, seq, &cur, sink, clk, time.Second, 10)
		assert.Len(t, sink.written, 3)
		assert.Equal(t, 0, p.Skipped())
	})

	t.Run("enabled drops late events", func(t *testing.T) {
		clk := clock.NewManual(macro.Timestamp{})
		sink := &fakeSink{clock: clk}
		p := NewPlayer(clk, SkipPolicy{Margin: 5 * time.Millisecond}, nil, testLogger(t))
		seq := sequenceOf(t, seqEvents...)
		var cur Cursor

		p.Begin()
		drive(t, p, seq, &cur, sink, clk, time.Second, 10)
		assert.Equal(t, []macro.Triple{triple(1, 1, 1)}, sink.triples())
		assert.Equal(t, 2, p.Skipped())
	})

	t.Run("enabled keeps events within margin", func(t *testing.T) {
		clk := clock.NewManual(macro.Timestamp{})
		sink := &fakeSink{clock: clk}
		p := NewPlayer(clk, SkipPolicy{Margin: 5 * time.Millisecond}, nil, testLogger(t))
		seq := sequenceOf(t, seqEvents...)
		var cur Cursor

		p.Begin()
		drive(t, p, seq, &cur, sink, clk, 12*time.Millisecond, 10)
		assert.Len(t, sink.written, 3)
		assert.Equal(t, 0, p.Skipped())
	})
}
