package store

import (
	"database/sql"
	"errors"

	dbutil "github.com/llehouerou/earshot/internal/db"
	"github.com/llehouerou/earshot/internal/episode"
)

// UpsertPodcast inserts or updates a podcast record. Aggregates are preserved
// on update; only feed metadata is refreshed.
func (s *Store) UpsertPodcast(p episode.Podcast) error {
	_, err := s.db.Exec(`
		INSERT INTO podcasts (id, title, author, feed_url, artwork_url, play_count, played_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			author = excluded.author,
			feed_url = excluded.feed_url,
			artwork_url = excluded.artwork_url
	`, p.ID, p.Title, nullStr(p.Author), p.FeedURL, nullStr(p.ArtworkURL), p.PlayCount, p.PlayedSeconds)
	return err
}

// Podcast returns a podcast by ID.
func (s *Store) Podcast(id string) (episode.Podcast, error) {
	var p episode.Podcast
	var author, artworkURL sql.NullString
	err := s.db.QueryRow(`
		SELECT id, title, author, feed_url, artwork_url, play_count, played_seconds
		FROM podcasts WHERE id = ?
	`, id).Scan(&p.ID, &p.Title, &author, &p.FeedURL, &artworkURL, &p.PlayCount, &p.PlayedSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return episode.Podcast{}, ErrNotFound
	}
	if err != nil {
		return episode.Podcast{}, err
	}
	p.Author = dbutil.NullStringValue(author)
	p.ArtworkURL = dbutil.NullStringValue(artworkURL)
	return p, nil
}
