// Package playback owns the single live playback session: the state machine
// binding one episode to the media engine, its position checkpointing, and
// completion detection. Exactly one session exists per process; callers
// depend on the Service interface, not the concrete type.
package playback

import (
	"time"

	"github.com/llehouerou/earshot/internal/episode"
)

// Status is the in-memory projection of the live session. It is not
// persisted directly; it checkpoints into the episode record.
type Status struct {
	Episode  *episode.Episode
	Position time.Duration
	Duration time.Duration
	State    State
}

// IsLoading reports whether the player should show a loading indicator.
func (s Status) IsLoading() bool {
	return s.State == StateLoading
}

// Service defines the playback session contract.
type Service interface {
	// Playback control
	Start(ep episode.Episode) error
	TogglePlayback(ep episode.Episode) error
	Pause()
	Resume() error
	Stop()
	SeekTo(pos time.Duration)
	SkipForward()
	SkipBackward()

	// State queries
	Status() Status
	State() State
	Current() *episode.Episode
	Position() time.Duration
	Duration() time.Duration

	// RestoreDisplay binds an episode for display only, without audio.
	RestoreDisplay(ep episode.Episode, pos time.Duration)

	// Event subscription
	Subscribe() *Subscription

	// Lifecycle
	Close() error
}

// Persister is the slice of the durable store the session writes to. The
// session only ever touches the fields it owns: playback position, the
// now-playing flag, played status and the restore state.
type Persister interface {
	SetNowPlaying(id string) error
	Checkpoint(id string, position float64) error
	MarkPlayed(id string, listenedSeconds float64, playedAt time.Time) error
	ClearPlayed(id string) error
	SetActualDuration(id string, seconds float64) error
	SaveRestore(episodeID string, position float64) error
}

// Queue is the slice of the queue store the session drives.
type Queue interface {
	Contains(id string) bool
	AddToFront(ep episode.Episode, pushingBack *episode.Episode)
	Remove(id string)
	Head() *episode.Episode
}
