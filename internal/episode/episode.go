// Package episode defines the episode and podcast domain types shared by the
// store, the queue and the playback session. Both hold references to the same
// records; neither duplicates them.
package episode

import "time"

// Episode is the durable episode record. Queue membership and playback state
// live directly on the record as boolean flags; at most one episode may have
// NowPlaying set at rest.
type Episode struct {
	ID        string
	PodcastID string

	Title       string
	Author      string
	Description string
	PublishedAt time.Time

	EnclosureURL string
	ArtworkURL   string

	// Queue membership. QueuePosition values over queued episodes form a
	// contiguous 0..N-1 sequence when observed at rest.
	IsQueued      bool
	QueuePosition int

	IsPlayed   bool
	PlayedDate *time.Time
	PlayCount  int

	// PlaybackPosition is the last checkpointed position in seconds. It is
	// authoritative whenever the episode is not the live now-playing item.
	PlaybackPosition float64
	NowPlaying       bool

	// Duration is the feed-declared length in seconds. ActualDuration is the
	// measured length, preferred once known.
	Duration       float64
	ActualDuration float64

	// IsSaved marks the bookmark list. Queue and saved list are mutually
	// exclusive sets.
	IsSaved bool
}

// EffectiveDuration returns the measured duration when known, otherwise the
// feed-declared one.
func (e *Episode) EffectiveDuration() float64 {
	if e.ActualDuration > 0 {
		return e.ActualDuration
	}
	return e.Duration
}

// Podcast carries the per-feed aggregates bumped on episode completion.
type Podcast struct {
	ID            string
	Title         string
	Author        string
	FeedURL       string
	ArtworkURL    string
	PlayCount     int
	PlayedSeconds float64
}
