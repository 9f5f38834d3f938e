package playback

import (
	"time"

	"github.com/llehouerou/earshot/internal/episode"
)

// StateChange is emitted when the session state changes.
type StateChange struct {
	Previous State
	Current  State
}

// EpisodeChange is emitted when the session binds a different episode.
//
// Emitted by Start (including the autoplay path) and by Stop/completion when
// the bound episode goes away. Pause/Resume do not emit it. Side effects tied
// to the episode (now-playing publication, artwork) hang off this event.
type EpisodeChange struct {
	Previous *episode.Episode
	Current  *episode.Episode
}

// PositionChange is emitted on seeks and accepted clock ticks.
type PositionChange struct {
	Position time.Duration
}

// ErrorEvent is emitted when an operation fails.
type ErrorEvent struct {
	Operation string // e.g. "start", "seek"
	EpisodeID string
	Err       error
}
