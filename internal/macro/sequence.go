package macro

import (
	"iter"

	"github.com/pkg/errors"
)

var (
	// ErrResourceExhausted is returned when a sequence cannot hold another
	// event.
	ErrResourceExhausted = errors.New("event sequence capacity exhausted")

	// ErrInvalidDelay is returned when an event carries a delay that is
	// negative or not normalized.
	ErrInvalidDelay = errors.New("invalid event delay")
)

// Sequence is an ordered list of events. Insertion order is capture order
// and replay order.
//
// A Sequence is not safe for concurrent use.
type Sequence struct {
	events []Event
	limit  int
}

// NewSequence creates an empty sequence holding at most limit events. A limit
// of zero or less means unbounded.
func NewSequence(limit int) *Sequence {
	return &Sequence{limit: limit}
}

// Append copies ev to the tail of the sequence.
func (s *Sequence) Append(ev Event) error {
	if s.limit > 0 && len(s.events) >= s.limit {
		return errors.Wrapf(ErrResourceExhausted, "limit of %d events reached", s.limit)
	}
	s.events = append(s.events, ev)
	return nil
}

// All yields the events in capture order along with their position. The
// iterator can be ranged over any number of times and never mutates the
// sequence.
func (s *Sequence) All() iter.Seq2[int, Event] {
	return func(yield func(int, Event) bool) {
		for i, ev := range s.events {
			if !yield(i, ev) {
				return
			}
		}
	}
}

// At returns the event at position i.
func (s *Sequence) At(i int) (Event, bool) {
	if i < 0 || i >= len(s.events) {
		return Event{}, false
	}
	return s.events[i], true
}

// Len returns the number of stored events.
func (s *Sequence) Len() int {
	return len(s.events)
}

// Clear releases every stored event.
func (s *Sequence) Clear() {
	s.events = nil
}

// Events returns a copy of the stored events.
func (s *Sequence) Events() []Event {
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Replace discards the current contents and stores a copy of events. The
// sequence is left untouched if any event is rejected.
func (s *Sequence) Replace(events []Event) error {
	if s.limit > 0 && len(events) > s.limit {
		return errors.Wrapf(ErrResourceExhausted, "%d events exceed limit of %d", len(events), s.limit)
	}
	for i, ev := range events {
		if !ev.Delay.Valid() {
			return errors.Wrapf(ErrInvalidDelay, "event %d has delay %+v", i, ev.Delay)
		}
	}
	s.events = make([]Event, len(events))
	copy(s.events, events)
	return nil
}
