package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/adrg/xdg"
	"go.uber.org/zap"

	"github.com/llehouerou/earshot/internal/artwork"
	"github.com/llehouerou/earshot/internal/config"
	"github.com/llehouerou/earshot/internal/engine"
	"github.com/llehouerou/earshot/internal/episode"
	"github.com/llehouerou/earshot/internal/errmsg"
	"github.com/llehouerou/earshot/internal/logging"
	"github.com/llehouerou/earshot/internal/mpris"
	"github.com/llehouerou/earshot/internal/playback"
	"github.com/llehouerou/earshot/internal/probe"
	"github.com/llehouerou/earshot/internal/queue"
	"github.com/llehouerou/earshot/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = log.Sync() }()

	st, err := openStore(cfg)
	if err != nil {
		return errmsg.Wrap(errmsg.OpStoreOpen, err)
	}
	defer st.Close()

	q, err := queue.New(st, log)
	if err != nil {
		return errmsg.Wrap(errmsg.OpQueueLoad, err)
	}
	defer q.Close()

	audioCache, err := engine.NewCache(filepath.Join(xdg.CacheHome, "earshot", "audio"))
	if err != nil {
		return errmsg.Wrap(errmsg.OpEpisodeFetch, err)
	}

	cp := cfg.GetCheckpoint()
	eng := engine.NewBeep(audioCache, time.Duration(cp.TickSecs)*time.Second)

	session := playback.New(eng, q, st, log, playback.Config{
		Autoplay:              cfg.Autoplay,
		SkipForward:           time.Duration(cfg.GetSkipForwardSecs()) * time.Second,
		SkipBackward:          time.Duration(cfg.GetSkipBackwardSecs()) * time.Second,
		MinCheckpointInterval: time.Duration(cp.MinWriteIntervalSecs) * time.Second,
	})
	defer session.Close()

	art, err := artwork.NewFetcher(filepath.Join(xdg.CacheHome, "earshot", "artwork"), log)
	if err != nil {
		return errmsg.Wrap(errmsg.OpArtworkFetch, err)
	}

	remote, err := mpris.New(session, q, art)
	if err != nil {
		// Playback still works locally without the remote surface.
		log.Warn(errmsg.Format(errmsg.OpRemoteStart, err))
	} else {
		defer remote.Close()
	}

	go watchProbes(session, audioCache, st, log)

	restoreLastEpisode(st, session, log)

	log.Info("earshot started", zap.Int("queued", q.Len()))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	return nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.LogFile != "" {
		return logging.NewFile(cfg.LogLevel, cfg.LogFile)
	}
	return logging.New(cfg.LogLevel)
}

func openStore(cfg *config.Config) (*store.Store, error) {
	if cfg.DataDir != "" {
		return store.OpenPath(filepath.Join(cfg.DataDir, "earshot.db"))
	}
	return store.Open()
}

// watchProbes measures the true duration of episodes once their audio is
// cached and playing, and backfills missing title/author from file tags. The
// feed-declared duration is often wrong; the frame walk is authoritative.
func watchProbes(session playback.Service, cache *engine.Cache, st *store.Store, log *zap.Logger) {
	sub := session.Subscribe()
	for {
		select {
		case <-sub.Done:
			return
		case ev := <-sub.StateChanged:
			if ev.Current != playback.StatePlaying {
				continue
			}
			ep := session.Current()
			if ep == nil {
				continue
			}
			go probeEpisode(cache, st, log, *ep)
		}
	}
}

func probeEpisode(cache *engine.Cache, st *store.Store, log *zap.Logger, ep episode.Episode) {
	cur, err := st.Get(ep.ID)
	if err != nil {
		return
	}
	if cur.ActualDuration > 0 && cur.Title != "" && cur.Author != "" {
		return // nothing left to learn
	}
	path, ok := cache.CachedPath(cur.EnclosureURL)
	if !ok {
		return
	}
	res, err := probe.File(path)
	if err != nil {
		log.Debug(errmsg.Format(errmsg.OpEpisodeProbe, err), zap.String("episode", cur.ID))
		return
	}

	if res.DurationSeconds > 0 && cur.ActualDuration == 0 {
		if err := st.SetActualDuration(cur.ID, res.DurationSeconds); err != nil {
			log.Warn("actual duration save failed", zap.String("episode", cur.ID), zap.Error(err))
		}
	}
	if (cur.Title == "" && res.Title != "") || (cur.Author == "" && res.Author != "") {
		if cur.Title == "" {
			cur.Title = res.Title
		}
		if cur.Author == "" {
			cur.Author = res.Author
		}
		if err := st.Upsert(cur); err != nil {
			log.Warn("tag backfill failed", zap.String("episode", cur.ID), zap.Error(err))
		}
	}
}

// restoreLastEpisode rebinds whatever was playing when the process last
// exited, paused at the checkpointed position. Audio stays unloaded until
// the user resumes.
func restoreLastEpisode(st *store.Store, session playback.Service, log *zap.Logger) {
	rs, err := st.LoadRestore()
	if err != nil {
		log.Warn("load restore state", zap.Error(err))
		return
	}
	if rs == nil {
		return
	}
	ep, err := st.Get(rs.EpisodeID)
	if err != nil {
		log.Warn("restore episode lookup", zap.String("episode", rs.EpisodeID), zap.Error(err))
		return
	}
	session.RestoreDisplay(ep, time.Duration(rs.Position*float64(time.Second)))
	log.Info("restored last episode",
		zap.String("episode", ep.ID),
		zap.Float64("position", rs.Position))
}
