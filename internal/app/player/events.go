package player

// EventKind tags a player notification.
type EventKind int

const (
	EventTrackEnd    EventKind = iota // Playback reached end of file
	EventTrackError                   // Playback aborted with an error
	EventProcessExit                  // Subprocess died or was force-killed
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventTrackEnd:
		return "track_end"
	case EventTrackError:
		return "track_error"
	case EventProcessExit:
		return "process_exit"
	default:
		return "unknown"
	}
}

// Event is an unsolicited notification from the player subprocess.
type Event struct {
	Kind EventKind
}
