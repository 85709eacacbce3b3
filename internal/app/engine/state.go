package engine

// State represents the per-room playback state.
type State int

const (
	StateIdle    State = iota // Nothing on the air
	StateLoading              // A play attempt is in flight
	StatePlaying              // Track is playing
	StatePaused               // Track is paused by the user
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}
