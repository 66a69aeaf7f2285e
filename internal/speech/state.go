package speech

// State is a session lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateListening
	StateRestarting
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateRestarting:
		return "restarting"
	case StateFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// Active reports whether a session exists in this state.
func (s State) Active() bool {
	return s != StateIdle
}
