//go:build linux

package mpris

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/quarckster/go-mpris-server/pkg/server"
	"github.com/quarckster/go-mpris-server/pkg/types"

	"github.com/llehouerou/earshot/internal/artwork"
	"github.com/llehouerou/earshot/internal/playback"
	"github.com/llehouerou/earshot/internal/queue"
)

// Adapter connects the playback session to MPRIS over D-Bus: it publishes the
// now-playing payload and maps incoming transport commands onto the session.
type Adapter struct {
	service playback.Service
	artwork *artwork.Fetcher
	server  *server.Server
	sub     *playback.Subscription
	done    chan struct{}
}

// New creates and starts a new MPRIS adapter.
func New(service playback.Service, q *queue.Store, art *artwork.Fetcher) (*Adapter, error) {
	a := &Adapter{
		service: service,
		artwork: art,
		done:    make(chan struct{}),
	}

	rootAdapter := &rootAdapter{}
	playerAdapter := &playerAdapter{service: service, queue: q, artwork: art}

	a.server = server.NewServer("earshot", rootAdapter, playerAdapter)
	a.sub = service.Subscribe()

	// Start the server in background
	go func() {
		_ = a.server.Listen()
	}()

	// Prefetch artwork when the bound episode changes so Metadata queries
	// hit the cache; clients re-query after the fetch lands.
	go a.watch()

	return a, nil
}

func (a *Adapter) watch() {
	for {
		select {
		case <-a.done:
			return
		case <-a.sub.Done:
			return
		case ev := <-a.sub.EpisodeChanged:
			if ev.Current != nil && ev.Current.ArtworkURL != "" && a.artwork != nil {
				a.artwork.Fetch(ev.Current.ArtworkURL, func(string) {})
			}
		}
	}
}

// Close stops the adapter and releases D-Bus resources.
func (a *Adapter) Close() error {
	close(a.done)
	return a.server.Stop()
}

// rootAdapter implements OrgMprisMediaPlayer2Adapter.
type rootAdapter struct{}

func (r *rootAdapter) Raise() error {
	return nil // Not supported
}

func (r *rootAdapter) Quit() error {
	return nil // Not supported - app manages its own lifecycle
}

func (r *rootAdapter) CanQuit() (bool, error) {
	return false, nil
}

func (r *rootAdapter) CanRaise() (bool, error) {
	return false, nil
}

func (r *rootAdapter) HasTrackList() (bool, error) {
	return false, nil // Track list interface not implemented
}

func (r *rootAdapter) Identity() (string, error) {
	return "Earshot", nil
}

//nolint:revive // Method name required by interface.
func (r *rootAdapter) SupportedUriSchemes() ([]string, error) {
	return []string{"http", "https", "file"}, nil
}

func (r *rootAdapter) SupportedMimeTypes() ([]string, error) {
	return []string{"audio/mpeg", "audio/mp3"}, nil
}

// playerAdapter implements OrgMprisMediaPlayer2PlayerAdapter.
type playerAdapter struct {
	service playback.Service
	queue   *queue.Store
	artwork *artwork.Fetcher
}

// Next skips forward; a podcast queue has no notion of skipping to an
// arbitrary next track mid-episode, so the transport buttons map to the
// configured skip intervals.
func (p *playerAdapter) Next() error {
	p.service.SkipForward()
	return nil
}

func (p *playerAdapter) Previous() error {
	p.service.SkipBackward()
	return nil
}

func (p *playerAdapter) Pause() error {
	p.service.Pause()
	return nil
}

func (p *playerAdapter) PlayPause() error {
	if cur := p.service.Current(); cur != nil {
		return p.service.TogglePlayback(*cur)
	}
	return p.playHead()
}

func (p *playerAdapter) Stop() error {
	p.service.Stop()
	return nil
}

func (p *playerAdapter) Play() error {
	switch p.service.State() {
	case playback.StatePlaying, playback.StateLoading:
		return nil
	case playback.StatePaused:
		return p.service.Resume()
	}
	if cur := p.service.Current(); cur != nil {
		return p.service.Start(*cur)
	}
	return p.playHead()
}

func (p *playerAdapter) playHead() error {
	head := p.queue.Head()
	if head == nil {
		return nil
	}
	return p.service.Start(*head)
}

func (p *playerAdapter) Seek(offset types.Microseconds) error {
	p.service.SeekTo(p.service.Position() + time.Duration(offset)*time.Microsecond)
	return nil
}

func (p *playerAdapter) SetPosition(_ string, position types.Microseconds) error {
	p.service.SeekTo(time.Duration(position) * time.Microsecond)
	return nil
}

//nolint:revive // Method name required by interface.
func (p *playerAdapter) OpenUri(_ string) error {
	return nil // Not supported
}

func (p *playerAdapter) PlaybackStatus() (types.PlaybackStatus, error) {
	switch p.service.State() {
	case playback.StatePlaying, playback.StateLoading:
		return types.PlaybackStatusPlaying, nil
	case playback.StatePaused:
		return types.PlaybackStatusPaused, nil
	}
	return types.PlaybackStatusStopped, nil
}

func (p *playerAdapter) Rate() (float64, error) {
	return 1.0, nil
}

func (p *playerAdapter) SetRate(_ float64) error {
	return nil // Not supported
}

func (p *playerAdapter) Metadata() (types.Metadata, error) {
	ep := p.service.Current()
	if ep == nil {
		return types.Metadata{}, nil
	}

	meta := types.Metadata{
		TrackId: dbus.ObjectPath(formatTrackID(ep.ID)),
		Length:  types.Microseconds(p.service.Duration().Microseconds()),
		Title:   ep.Title,
		Artist:  []string{ep.Author},
		Album:   ep.PodcastID,
	}

	if p.artwork != nil {
		if path := p.artwork.Cached(ep.ArtworkURL); path != "" {
			meta.ArtUrl = "file://" + path
		} else if ep.ArtworkURL != "" {
			p.artwork.Fetch(ep.ArtworkURL, func(string) {})
		}
	}

	return meta, nil
}

func (p *playerAdapter) Volume() (float64, error) {
	return 1.0, nil // Volume control not exposed via service
}

func (p *playerAdapter) SetVolume(_ float64) error {
	return nil // Not supported
}

func (p *playerAdapter) Position() (int64, error) {
	return p.service.Position().Microseconds(), nil
}

func (p *playerAdapter) MinimumRate() (float64, error) {
	return 1.0, nil
}

func (p *playerAdapter) MaximumRate() (float64, error) {
	return 1.0, nil
}

func (p *playerAdapter) CanGoNext() (bool, error) {
	return p.service.State().IsActive(), nil
}

func (p *playerAdapter) CanGoPrevious() (bool, error) {
	return p.service.State().IsActive(), nil
}

func (p *playerAdapter) CanPlay() (bool, error) {
	return p.service.Current() != nil || p.queue.Len() > 0, nil
}

func (p *playerAdapter) CanPause() (bool, error) {
	return true, nil
}

func (p *playerAdapter) CanSeek() (bool, error) {
	return true, nil
}

func (p *playerAdapter) CanControl() (bool, error) {
	return true, nil
}

func formatTrackID(id string) string {
	h := fnv.New64a()
	h.Write([]byte(id))
	return fmt.Sprintf("/org/mpris/MediaPlayer2/Episode/%x", h.Sum64())
}
