package domain

// StreamState mirrors the relay's service state. The reader only observes it.
type StreamState int32

const (
	StateUnknown StreamState = iota
	StateStopped
	StateRunning
	StateIdle
	StateUnavailable
	StateError
)

// Streamable reports whether a stream may be opened in this state.
func (s StreamState) Streamable() bool {
	switch s {
	case StateIdle, StateRunning:
		return true
	default:
		return false
	}
}

func (s StreamState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateIdle:
		return "idle"
	case StateUnavailable:
		return "unavailable"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseStreamState is the inverse of String. Unrecognised input is StateUnknown.
func ParseStreamState(s string) StreamState {
	for st := StateStopped; st <= StateError; st++ {
		if st.String() == s {
			return st
		}
	}
	return StateUnknown
}
