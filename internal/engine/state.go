package engine

// State is the control state of a Session.
type State int

// Control states.
const (
	Idle State = iota
	Recording
	Playing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Playing:
		return "playing"
	}
	return "unknown"
}
