package store

import (
	"database/sql"
	"errors"
	"strconv"
)

// RestoreState is the last-known playback display state, kept in the simple
// key-value table rather than on episode records. It is read once at startup
// so the session can show where the listener left off without starting audio.
type RestoreState struct {
	EpisodeID string
	Position  float64
}

const (
	keyLastEpisode  = "last_episode_id"
	keyLastPosition = "last_position"
)

// SaveRestore persists the restore state.
func (s *Store) SaveRestore(episodeID string, position float64) error {
	if err := s.setKV(keyLastEpisode, episodeID); err != nil {
		return err
	}
	return s.setKV(keyLastPosition, strconv.FormatFloat(position, 'f', -1, 64))
}

// LoadRestore reads the restore state. Returns nil when nothing was saved.
func (s *Store) LoadRestore() (*RestoreState, error) {
	id, err := s.getKV(keyLastEpisode)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, nil
	}
	posStr, err := s.getKV(keyLastPosition)
	if err != nil {
		return nil, err
	}
	pos, _ := strconv.ParseFloat(posStr, 64)
	return &RestoreState{EpisodeID: id, Position: pos}, nil
}

func (s *Store) setKV(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO player_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func (s *Store) getKV(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM player_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}
