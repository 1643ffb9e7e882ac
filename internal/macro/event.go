// Package macro holds captured input events and the ordered sequence they
// are replayed from.
package macro

import "fmt"

// Triple is a raw input event as read from or written to a device. The
// values are opaque to this package.
type Triple struct {
	Kind  uint16 `json:"type"`
	Code  uint16 `json:"code"`
	Value int32  `json:"value"`
}

func (t Triple) String() string {
	return fmt.Sprintf("type=%d code=%d value=%d", t.Kind, t.Code, t.Value)
}

// Event is a captured triple together with the delay since the previous
// event of the same sequence was captured.
type Event struct {
	Triple
	Delay Delay `json:"delay"`
}

func (e Event) String() string {
	return fmt.Sprintf("%v delay=%v", e.Triple, e.Delay)
}
