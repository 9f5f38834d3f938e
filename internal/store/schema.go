package store

import (
	"database/sql"

	dbutil "github.com/llehouerou/earshot/internal/db"
)

const currentSchemaVersion = 3

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS podcasts (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			author TEXT,
			feed_url TEXT NOT NULL,
			artwork_url TEXT,
			play_count INTEGER NOT NULL DEFAULT 0,
			played_seconds REAL NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS episodes (
			id TEXT PRIMARY KEY,
			podcast_id TEXT NOT NULL REFERENCES podcasts(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			author TEXT,
			description TEXT,
			published_at TIMESTAMP,
			enclosure_url TEXT NOT NULL,
			artwork_url TEXT,
			is_queued INTEGER NOT NULL DEFAULT 0,
			queue_position INTEGER NOT NULL DEFAULT 0,
			is_played INTEGER NOT NULL DEFAULT 0,
			played_date TIMESTAMP,
			play_count INTEGER NOT NULL DEFAULT 0,
			playback_position REAL NOT NULL DEFAULT 0,
			now_playing INTEGER NOT NULL DEFAULT 0,
			duration REAL NOT NULL DEFAULT 0,
			actual_duration REAL NOT NULL DEFAULT 0,
			is_saved INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_episodes_queued ON episodes(is_queued, queue_position);
		CREATE INDEX IF NOT EXISTS idx_episodes_now_playing ON episodes(now_playing);
		CREATE INDEX IF NOT EXISTS idx_episodes_podcast ON episodes(podcast_id);

		CREATE TABLE IF NOT EXISTS player_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		INSERT OR IGNORE INTO schema_version (version) VALUES (?)
	`, currentSchemaVersion)
	if err != nil {
		return err
	}

	// Migration: add actual_duration and is_saved columns if missing
	_, _ = db.Exec(`ALTER TABLE episodes ADD COLUMN actual_duration REAL NOT NULL DEFAULT 0`)
	_, _ = db.Exec(`ALTER TABLE episodes ADD COLUMN is_saved INTEGER NOT NULL DEFAULT 0`)

	return migrateLegacyFlags(db)
}

// migrateLegacyFlags folds the old normalized episode_flags table back into
// boolean columns on episodes. Earlier revisions kept queue membership and
// now-playing state in a separate record; the boolean-flag model on the
// episode row is authoritative now. The migration is idempotent: it runs once,
// drops the legacy table, and is a no-op when the table is absent.
func migrateLegacyFlags(db *sql.DB) error {
	var name string
	err := db.QueryRow(`
		SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'episode_flags'
	`).Scan(&name)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}

	return dbutil.WithTx(db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE episodes SET
				is_queued = COALESCE((SELECT f.is_queued FROM episode_flags f WHERE f.episode_id = episodes.id), is_queued),
				queue_position = COALESCE((SELECT f.queue_position FROM episode_flags f WHERE f.episode_id = episodes.id), queue_position),
				now_playing = COALESCE((SELECT f.now_playing FROM episode_flags f WHERE f.episode_id = episodes.id), now_playing),
				playback_position = COALESCE((SELECT f.playback_position FROM episode_flags f WHERE f.episode_id = episodes.id), playback_position)
		`)
		if err != nil {
			return err
		}
		// The flag model allows at most one now-playing row; the legacy table
		// did not enforce it. Keep the lowest queue position as the winner.
		_, err = tx.Exec(`
			UPDATE episodes SET now_playing = 0
			WHERE now_playing = 1 AND id != (
				SELECT id FROM episodes WHERE now_playing = 1
				ORDER BY queue_position, id LIMIT 1
			)
		`)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`DROP TABLE episode_flags`)
		return err
	})
}
