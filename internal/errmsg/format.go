// Package errmsg provides consistent error formatting for user-facing messages.
package errmsg

import "fmt"

// Op represents an operation that can fail.
type Op string

// Operation constants - grouped by domain.
const (
	// Queue operations
	OpQueueLoad    Op = "load queue"
	OpQueueSave    Op = "save queue"
	OpQueueAdd     Op = "add to queue"
	OpQueueRemove  Op = "remove from queue"
	OpQueueReorder Op = "reorder queue"

	// Playback operations
	OpPlaybackStart  Op = "start playback"
	OpPlaybackSeek   Op = "seek"
	OpPlaybackResume Op = "resume playback"

	// Store operations
	OpStoreOpen       Op = "open episode store"
	OpStoreCheckpoint Op = "checkpoint position"
	OpStoreMarkPlayed Op = "mark episode played"

	// Episode operations
	OpEpisodeFetch Op = "fetch episode audio"
	OpEpisodeProbe Op = "measure episode duration"

	// Artwork operations
	OpArtworkFetch Op = "fetch artwork"

	// Remote control operations
	OpRemoteStart Op = "start remote control"
)

// Format returns a user-facing message for a failed operation.
func Format(op Op, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("failed to %s: %v", op, err)
}

// Wrap annotates err with the operation for error chains.
func Wrap(op Op, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
