package playback

// State represents the playback session state.
//
// The state machine:
//
//	Idle → Loading → Playing ⇄ Paused → Ended → Idle
//
// plus Failed, which settles back to Idle. Loading is visibly distinct so a
// UI can show a spinner instead of a falsely idle player; it clears when the
// engine reports readiness or the start watchdog forces playback.
type State int

const (
	StateIdle State = iota
	StateLoading
	StatePlaying
	StatePaused
	StateEnded
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateLoading:
		return "Loading"
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	case StateEnded:
		return "Ended"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// IsActive returns true if an episode is bound (loading, playing or paused).
func (s State) IsActive() bool {
	return s == StateLoading || s == StatePlaying || s == StatePaused
}
