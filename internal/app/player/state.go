// Package player provides playback transport control over the queue model.
package player

// State represents the playback state.
type State int

const (
	StateIdle    State = iota // No current track
	StatePlaying              // Track is playing
	StatePaused               // Track is paused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// RepeatMode represents the queue repeat behavior.
type RepeatMode string

const (
	RepeatOff RepeatMode = "off" // Stop at the end of the queue
	RepeatAll RepeatMode = "all" // Wrap around at the queue edges
	RepeatOne RepeatMode = "one" // Restart the same track on natural end
)

// ParseRepeatMode parses a repeat mode string, defaulting to RepeatOff.
func ParseRepeatMode(s string) RepeatMode {
	switch RepeatMode(s) {
	case RepeatAll:
		return RepeatAll
	case RepeatOne:
		return RepeatOne
	default:
		return RepeatOff
	}
}
