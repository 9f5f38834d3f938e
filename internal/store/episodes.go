package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	dbutil "github.com/llehouerou/earshot/internal/db"
	"github.com/llehouerou/earshot/internal/episode"
)

// ErrNotFound is returned when an episode does not exist.
var ErrNotFound = errors.New("episode not found")

const episodeColumns = `
	id, podcast_id, title, author, description, published_at,
	enclosure_url, artwork_url,
	is_queued, queue_position, is_played, played_date, play_count,
	playback_position, now_playing, duration, actual_duration, is_saved
`

func scanEpisode(row interface{ Scan(...any) error }) (episode.Episode, error) {
	var e episode.Episode
	var author, description, artworkURL sql.NullString
	var publishedAt, playedDate sql.NullTime

	err := row.Scan(
		&e.ID, &e.PodcastID, &e.Title, &author, &description, &publishedAt,
		&e.EnclosureURL, &artworkURL,
		&e.IsQueued, &e.QueuePosition, &e.IsPlayed, &playedDate, &e.PlayCount,
		&e.PlaybackPosition, &e.NowPlaying, &e.Duration, &e.ActualDuration, &e.IsSaved,
	)
	if err != nil {
		return episode.Episode{}, err
	}

	e.Author = dbutil.NullStringValue(author)
	e.Description = dbutil.NullStringValue(description)
	e.ArtworkURL = dbutil.NullStringValue(artworkURL)
	if publishedAt.Valid {
		e.PublishedAt = publishedAt.Time
	}
	e.PlayedDate = dbutil.NullTimeToPtr(playedDate)
	return e, nil
}

// Get returns a single episode by ID.
func (s *Store) Get(id string) (episode.Episode, error) {
	row := s.db.QueryRow(`SELECT `+episodeColumns+` FROM episodes WHERE id = ?`, id)
	e, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return episode.Episode{}, ErrNotFound
	}
	return e, err
}

// Queued returns all queued episodes ordered by queue position.
func (s *Store) Queued() ([]episode.Episode, error) {
	rows, err := s.db.Query(`
		SELECT ` + episodeColumns + `
		FROM episodes
		WHERE is_queued = 1
		ORDER BY queue_position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var episodes []episode.Episode
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, e)
	}
	return episodes, rows.Err()
}

// NowPlayingEpisode returns the episode currently flagged now-playing, or nil.
// Cardinality above one indicates a violated invariant and is surfaced as an
// error rather than silently picking a winner.
func (s *Store) NowPlayingEpisode() (*episode.Episode, error) {
	rows, err := s.db.Query(`SELECT ` + episodeColumns + ` FROM episodes WHERE now_playing = 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var found []episode.Episode
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return &found[0], nil
	default:
		return nil, fmt.Errorf("%d episodes flagged now playing", len(found))
	}
}

// Upsert inserts or replaces an episode record.
func (s *Store) Upsert(e episode.Episode) error {
	_, err := s.db.Exec(`
		INSERT INTO episodes (`+episodeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			author = excluded.author,
			description = excluded.description,
			published_at = excluded.published_at,
			enclosure_url = excluded.enclosure_url,
			artwork_url = excluded.artwork_url,
			duration = excluded.duration
	`,
		e.ID, e.PodcastID, e.Title, nullStr(e.Author), nullStr(e.Description), nullTime(e.PublishedAt),
		e.EnclosureURL, nullStr(e.ArtworkURL),
		e.IsQueued, e.QueuePosition, e.IsPlayed, e.PlayedDate, e.PlayCount,
		e.PlaybackPosition, e.NowPlaying, e.Duration, e.ActualDuration, e.IsSaved,
	)
	return err
}

// SaveQueue persists queue membership and ordering in one transaction: the
// given IDs become the queued set with positions 0..N-1, everything else is
// unqueued. Queued episodes leave the saved list.
func (s *Store) SaveQueue(orderedIDs []string) error {
	return dbutil.WithTx(s.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`UPDATE episodes SET is_queued = 0, queue_position = 0 WHERE is_queued = 1`); err != nil {
			return err
		}
		stmt, err := tx.Prepare(`
			UPDATE episodes SET is_queued = 1, queue_position = ?, is_saved = 0 WHERE id = ?
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for pos, id := range orderedIDs {
			if _, err := stmt.Exec(pos, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetNowPlaying flags the given episode as now playing and clears the flag
// everywhere else in the same transaction. An empty ID just clears it.
func (s *Store) SetNowPlaying(id string) error {
	return dbutil.WithTx(s.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`UPDATE episodes SET now_playing = 0 WHERE now_playing = 1`); err != nil {
			return err
		}
		if id == "" {
			return nil
		}
		res, err := tx.Exec(`UPDATE episodes SET now_playing = 1 WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Checkpoint writes a playback position for an episode.
func (s *Store) Checkpoint(id string, position float64) error {
	_, err := s.db.Exec(`UPDATE episodes SET playback_position = ? WHERE id = ?`, position, id)
	return err
}

// MarkPlayed marks an episode played: position reset, played flag and date
// set, play counters on the episode and its parent podcast bumped, the
// listened seconds aggregated onto the podcast. One transaction.
func (s *Store) MarkPlayed(id string, listenedSeconds float64, playedAt time.Time) error {
	return dbutil.WithTx(s.db, func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE episodes SET
				is_played = 1,
				played_date = ?,
				play_count = play_count + 1,
				playback_position = 0,
				now_playing = 0
			WHERE id = ?
		`, playedAt, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		_, err = tx.Exec(`
			UPDATE podcasts SET
				play_count = play_count + 1,
				played_seconds = played_seconds + ?
			WHERE id = (SELECT podcast_id FROM episodes WHERE id = ?)
		`, listenedSeconds, id)
		return err
	})
}

// ClearPlayed resets the played flag, for an episode being replayed.
func (s *Store) ClearPlayed(id string) error {
	_, err := s.db.Exec(`UPDATE episodes SET is_played = 0, played_date = NULL WHERE id = ?`, id)
	return err
}

// SetActualDuration records the measured duration for an episode.
func (s *Store) SetActualDuration(id string, seconds float64) error {
	_, err := s.db.Exec(`UPDATE episodes SET actual_duration = ? WHERE id = ?`, seconds, id)
	return err
}

// SetSaved toggles bookmark membership.
func (s *Store) SetSaved(id string, saved bool) error {
	_, err := s.db.Exec(`UPDATE episodes SET is_saved = ? WHERE id = ?`, saved, id)
	return err
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
