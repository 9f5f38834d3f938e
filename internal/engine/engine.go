// Package engine abstracts the media playback engine: load a resolved audio
// URL, control playback, read the clock, and observe readiness, ticks and
// completion on a single event stream. The playback session is the engine's
// only owner; nothing else touches it.
package engine

import "time"

// EventKind identifies an engine event.
type EventKind int

const (
	// EventReady fires once a loaded item can start advancing.
	EventReady EventKind = iota
	// EventTick is the periodic clock callback while an item is bound.
	EventTick
	// EventFinished fires when the engine reaches end of media.
	EventFinished
	// EventFailed fires when the engine gives up on the bound item.
	EventFailed
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "Ready"
	case EventTick:
		return "Tick"
	case EventFinished:
		return "Finished"
	case EventFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Event is a single engine observation. URL names the binding the event came
// from; a consumer that has since loaded a different source drops mismatches.
type Event struct {
	Kind     EventKind
	URL      string
	Position time.Duration
	Err      error // set for EventFailed
}

// Interface defines the engine contract for dependency injection and testing.
type Interface interface {
	// Load binds the engine to the audio at url. It blocks while the source
	// is fetched and decoded; EventReady follows on success. Loading a new
	// URL tears down the previous binding.
	Load(url string) error
	Play()
	Pause()
	SeekTo(pos time.Duration)
	Position() time.Duration
	Duration() time.Duration
	// Rate is 0 when stopped or paused, the playback speed otherwise.
	Rate() float64
	// Loaded reports whether a ready item is currently bound.
	Loaded() bool
	// Unload tears down the current binding without closing the engine.
	Unload()
	Events() <-chan Event
	Close() error
}
