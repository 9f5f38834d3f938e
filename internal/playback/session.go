package playback

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/llehouerou/earshot/internal/engine"
	"github.com/llehouerou/earshot/internal/episode"
)

// ErrNoEnclosure is returned when an episode has no playable audio URL.
// Playback is aborted before the engine is touched.
var ErrNoEnclosure = errors.New("episode has no enclosure url")

const (
	// minPositionDelta filters redundant clock ticks.
	minPositionDelta = 500 * time.Millisecond
	// nearEndWindow is how close to the end counts as "near end".
	nearEndWindow = 3 * time.Second
	// minReliableDuration guards against episodes with unreliable duration
	// metadata being flagged complete prematurely.
	minReliableDuration = 10 * time.Second
)

// Config tunes the session. Zero values get sensible defaults.
type Config struct {
	Autoplay bool
	// AutoplayAllowed is an optional entitlement hook consulted before
	// autoplaying the next queued episode. Nil means allowed.
	AutoplayAllowed func() bool
	AutoplayDelay   time.Duration

	SkipForward  time.Duration
	SkipBackward time.Duration

	// StartWatchdog forces an immediate-start fallback when the engine has
	// not begun advancing after loading. StallWatchdog re-checks the clock
	// before concluding an episode actually completed.
	StartWatchdog time.Duration
	StallWatchdog time.Duration

	// MinCheckpointInterval bounds durable position writes during playback.
	MinCheckpointInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.AutoplayDelay <= 0 {
		c.AutoplayDelay = time.Second
	}
	if c.SkipForward <= 0 {
		c.SkipForward = 30 * time.Second
	}
	if c.SkipBackward <= 0 {
		c.SkipBackward = 15 * time.Second
	}
	if c.StartWatchdog <= 0 {
		c.StartWatchdog = 500 * time.Millisecond
	}
	if c.StallWatchdog <= 0 {
		c.StallWatchdog = time.Second
	}
	if c.MinCheckpointInterval <= 0 {
		c.MinCheckpointInterval = 2 * time.Second
	}
	return c
}

// Session is the single playback session. All engine events and watchdog
// callbacks funnel through one dispatcher; timers capture the generation
// current when they were armed and are dropped when it has moved on.
type Session struct {
	cfg       Config
	engine    engine.Interface
	queue     Queue
	persister Persister
	log       *zap.Logger
	cp        *checkpointer

	// loadMu serializes engine loads so rapid consecutive starts cannot bind
	// the engine out of order.
	loadMu sync.Mutex

	// pubMu serializes durable now-playing writes; each one re-checks its
	// generation under pubMu, so the flag on disk always ends up reflecting
	// the newest start or stop.
	pubMu sync.Mutex

	mu         sync.Mutex
	state      State
	current    *episode.Episode
	position   time.Duration
	duration   time.Duration
	seeking    bool
	userPaused bool
	stallArmed bool
	generation int

	subsMu sync.RWMutex
	subs   []*Subscription

	done   chan struct{}
	closed bool
}

// Verify Session implements Service at compile time.
var _ Service = (*Session)(nil)

// New creates the playback session and starts its dispatcher.
func New(eng engine.Interface, q Queue, p Persister, log *zap.Logger, cfg Config) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		cfg:       cfg,
		engine:    eng,
		queue:     q,
		persister: p,
		log:       log,
		cp:        newCheckpointer(p, log, cfg.MinCheckpointInterval),
		state:     StateIdle,
		done:      make(chan struct{}),
	}
	go s.run()
	return s
}

// run is the single dispatcher loop consuming the engine event stream.
func (s *Session) run() {
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.engine.Events():
			if !ok {
				return
			}
			switch ev.Kind {
			case engine.EventReady:
				s.handleReady(ev)
			case engine.EventTick:
				s.handleTick(ev)
			case engine.EventFinished:
				s.handleFinished(ev)
			case engine.EventFailed:
				s.handleEngineFailure(ev)
			}
		}
	}
}

// Start begins playback of the episode: enqueue it if needed, tear down the
// previous engine binding, load, seek to the saved position and play. The
// now-playing flag moves to the episode in a single store transaction.
func (s *Session) Start(ep episode.Episode) error {
	if ep.EnclosureURL == "" {
		s.emitError(ErrorEvent{Operation: "start", EpisodeID: ep.ID, Err: ErrNoEnclosure})
		return ErrNoEnclosure
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("session closed")
	}
	prev := s.current
	var outID string
	var outPos time.Duration
	if prev != nil && prev.ID != ep.ID && s.state.IsActive() {
		outID = prev.ID
		outPos = s.position
	}
	s.generation++
	gen := s.generation
	oldState := s.state
	cur := ep
	s.state = StateLoading
	s.current = &cur
	s.position = time.Duration(ep.PlaybackPosition * float64(time.Second))
	s.duration = time.Duration(ep.EffectiveDuration() * float64(time.Second))
	s.seeking = false
	s.userPaused = false
	s.stallArmed = false
	s.mu.Unlock()

	// Checkpoint the outgoing episode before its position is gone.
	if outID != "" {
		s.cp.Immediate(outID, outPos.Seconds())
	} else {
		s.cp.Cancel()
	}

	s.emitState(StateChange{Previous: oldState, Current: StateLoading})
	s.emitEpisode(EpisodeChange{Previous: prev, Current: &cur})

	// The in-memory queue mutation is synchronous; its durable write is not.
	if !s.queue.Contains(ep.ID) {
		s.queue.AddToFront(cur, prev)
	}

	go s.publishNowPlaying(gen, ep.ID, ep.IsPlayed)

	go s.load(cur, gen)
	time.AfterFunc(s.cfg.StartWatchdog, func() { s.startWatchdogFired(gen) })
	return nil
}

// publishNowPlaying writes the now-playing flag (and, on a replay, clears the
// played status) on a background goroutine. Writes are serialized and a write
// whose generation has been superseded is dropped, so rapid consecutive
// starts and stops cannot land their flags on disk out of order.
func (s *Session) publishNowPlaying(gen int, id string, clearPlayed bool) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	stale := gen != s.generation
	s.mu.Unlock()
	if stale {
		return
	}

	if err := s.persister.SetNowPlaying(id); err != nil {
		s.log.Warn("set now playing failed", zap.String("episode", id), zap.Error(err))
	}
	if clearPlayed && id != "" {
		if err := s.persister.ClearPlayed(id); err != nil {
			s.log.Warn("clear played failed", zap.String("episode", id), zap.Error(err))
		}
	}
}

// load binds the engine on a background goroutine; Load tears down the
// previous binding before establishing the new one. Loads are serialized and
// a load superseded by a newer start is skipped rather than applied stale.
func (s *Session) load(ep episode.Episode, gen int) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	s.mu.Lock()
	stale := s.closed || gen != s.generation
	s.mu.Unlock()
	if stale {
		return
	}

	if err := s.engine.Load(ep.EnclosureURL); err != nil {
		s.fail(gen, "start", ep.ID, err)
	}
}

// handleReady clears the loading state: seek to the saved checkpoint and go.
// A ready from a binding the session has moved past is dropped; one arriving
// while already playing means the start watchdog forced playback before the
// engine reported in, and the fresh binding is played in place without a
// state transition. A ready during a user pause is left alone.
func (s *Session) handleReady(ev engine.Event) {
	s.mu.Lock()
	if s.current == nil || ev.URL != s.current.EnclosureURL ||
		(s.state != StateLoading && s.state != StatePlaying) {
		s.mu.Unlock()
		return
	}
	wasLoading := s.state == StateLoading
	pos := s.position
	id := s.current.ID
	actual := s.current.ActualDuration
	s.mu.Unlock()

	if pos > 0 {
		s.engine.SeekTo(pos)
	}
	s.engine.Play()

	measured := s.engine.Duration()

	s.mu.Lock()
	if s.current == nil || s.current.ID != id {
		s.mu.Unlock()
		return
	}
	transition := wasLoading && s.state == StateLoading
	if transition {
		s.state = StatePlaying
	}
	if measured > 0 {
		s.duration = measured
	}
	s.mu.Unlock()

	if transition {
		s.emitState(StateChange{Previous: StateLoading, Current: StatePlaying})
	}

	// The engine clock is the first reliable duration measurement.
	if secs := measured.Seconds(); secs > 0 && secs != actual {
		go func() {
			if err := s.persister.SetActualDuration(id, secs); err != nil {
				s.log.Warn("actual duration save failed", zap.String("episode", id), zap.Error(err))
			}
		}()
	}
}

// startWatchdogFired forces the immediate-start fallback when the engine has
// not begun advancing in time. While the source is still loading it re-arms.
func (s *Session) startWatchdogFired(gen int) {
	s.mu.Lock()
	if s.closed || gen != s.generation || s.state != StateLoading {
		s.mu.Unlock()
		return
	}
	if !s.engine.Loaded() {
		s.mu.Unlock()
		time.AfterFunc(s.cfg.StartWatchdog, func() { s.startWatchdogFired(gen) })
		return
	}
	s.state = StatePlaying
	s.mu.Unlock()

	s.log.Debug("start watchdog fired, forcing playback")
	s.engine.Play()
	s.emitState(StateChange{Previous: StateLoading, Current: StatePlaying})
}

// handleTick processes the periodic clock callback: watch for the
// stalled-near-end completion heuristic, then advance the in-memory position
// and throttle a checkpoint. The small-delta filter gates only the position
// write; a stall within the filter window must still arm the watchdog.
func (s *Session) handleTick(ev engine.Event) {
	pos := ev.Position
	s.mu.Lock()
	if s.current == nil || ev.URL != s.current.EnclosureURL ||
		!s.state.IsActive() || s.seeking {
		s.mu.Unlock()
		return
	}
	dur := s.duration
	gen := s.generation
	nearEnd := dur > minReliableDuration && dur-pos <= nearEndWindow
	armStall := nearEnd && !s.stallArmed && s.engine.Rate() == 0
	if armStall {
		s.stallArmed = true
	}
	delta := pos - s.position
	if delta < 0 {
		delta = -delta
	}
	record := delta >= minPositionDelta
	var id string
	if record {
		s.position = pos
		id = s.current.ID
	}
	s.mu.Unlock()

	if record {
		s.emitPosition(pos)
		s.cp.Throttled(id, pos.Seconds())
	}
	if armStall {
		time.AfterFunc(s.cfg.StallWatchdog, func() { s.stallCheck(gen) })
	}
}

// stallCheck re-reads the clock after the stall watchdog: a rate of zero near
// the end that persists means the episode is done, not rebuffering.
func (s *Session) stallCheck(gen int) {
	s.mu.Lock()
	if s.closed || gen != s.generation || s.current == nil || !s.state.IsActive() {
		s.mu.Unlock()
		return
	}
	s.stallArmed = false
	dur := s.duration
	s.mu.Unlock()

	pos := s.engine.Position()
	if s.engine.Rate() == 0 && dur > minReliableDuration && dur-pos <= nearEndWindow {
		s.complete(gen)
	}
}

// handleFinished reacts to the engine's end-of-media signal. A finish from a
// superseded binding must not complete the episode that replaced it.
func (s *Session) handleFinished(ev engine.Event) {
	s.mu.Lock()
	if s.current == nil || ev.URL != s.current.EnclosureURL || !s.state.IsActive() {
		s.mu.Unlock()
		return
	}
	gen := s.generation
	s.mu.Unlock()
	s.complete(gen)
}

// complete finalizes a finished episode: position forced to zero, played
// status set, now-playing cleared, removed from the queue, aggregates bumped,
// then autoplay of the queue head when enabled and entitled.
func (s *Session) complete(gen int) {
	s.mu.Lock()
	if s.closed || gen != s.generation || s.current == nil {
		s.mu.Unlock()
		return
	}
	ep := *s.current
	oldState := s.state
	s.generation++
	nextGen := s.generation
	s.state = StateEnded
	s.current = nil
	s.position = 0
	s.seeking = false
	listened := s.duration.Seconds()
	s.mu.Unlock()

	s.cp.Cancel()
	s.engine.Unload()

	s.emitState(StateChange{Previous: oldState, Current: StateEnded})
	s.emitEpisode(EpisodeChange{Previous: &ep, Current: nil})

	if err := s.persister.MarkPlayed(ep.ID, listened, time.Now()); err != nil {
		s.log.Warn("mark played failed", zap.String("episode", ep.ID), zap.Error(err))
	}
	if err := s.persister.SaveRestore(ep.ID, 0); err != nil {
		s.log.Warn("restore state save failed", zap.String("episode", ep.ID), zap.Error(err))
	}
	// Already-played episodes were removed from the queue when first marked;
	// removing again would renumber an entry that is not there.
	if !ep.IsPlayed {
		s.queue.Remove(ep.ID)
	}

	s.mu.Lock()
	settled := s.generation == nextGen && s.state == StateEnded
	if settled {
		s.state = StateIdle
	}
	s.mu.Unlock()
	if settled {
		s.emitState(StateChange{Previous: StateEnded, Current: StateIdle})
	}

	if s.cfg.Autoplay && (s.cfg.AutoplayAllowed == nil || s.cfg.AutoplayAllowed()) {
		time.AfterFunc(s.cfg.AutoplayDelay, func() { s.autoplayFired(nextGen) })
	}
}

func (s *Session) autoplayFired(gen int) {
	s.mu.Lock()
	stale := s.closed || gen != s.generation || s.state != StateIdle
	s.mu.Unlock()
	if stale {
		return
	}
	next := s.queue.Head()
	if next == nil {
		return
	}
	if err := s.Start(*next); err != nil {
		s.log.Warn("autoplay failed", zap.String("episode", next.ID), zap.Error(err))
	}
}

// Pause pauses playback and checkpoints immediately. The pause is recorded as
// user-intended, distinguishing it from system interruptions.
func (s *Session) Pause() {
	s.mu.Lock()
	if s.state != StatePlaying {
		s.mu.Unlock()
		return
	}
	s.state = StatePaused
	s.userPaused = true
	id := s.current.ID
	pos := s.position
	s.mu.Unlock()

	s.engine.Pause()
	s.emitState(StateChange{Previous: StatePlaying, Current: StatePaused})
	s.cp.Immediate(id, pos.Seconds())
}

// Resume continues a paused episode. When the engine still holds a ready item
// it resumes in place; otherwise the episode is fully reloaded, which covers
// playback resources reclaimed while backgrounded.
func (s *Session) Resume() error {
	s.mu.Lock()
	if s.state != StatePaused || s.current == nil {
		s.mu.Unlock()
		return nil
	}
	if s.engine.Loaded() {
		s.state = StatePlaying
		s.userPaused = false
		s.mu.Unlock()
		s.engine.Play()
		s.emitState(StateChange{Previous: StatePaused, Current: StatePlaying})
		return nil
	}
	ep := *s.current
	ep.PlaybackPosition = s.position.Seconds()
	s.mu.Unlock()
	return s.Start(ep)
}

// TogglePlayback flips play/pause for the live episode, or starts a new one.
func (s *Session) TogglePlayback(ep episode.Episode) error {
	s.mu.Lock()
	sameEpisode := s.current != nil && s.current.ID == ep.ID
	state := s.state
	s.mu.Unlock()

	if sameEpisode {
		switch state {
		case StatePlaying:
			s.Pause()
			return nil
		case StatePaused:
			return s.Resume()
		case StateLoading:
			return nil // already on its way
		}
	}
	return s.Start(ep)
}

// SeekTo updates the in-memory position immediately and issues the engine
// seek in the background. The seeking flag suppresses tick processing until
// the engine confirms, so stale clock reads cannot fire the near-end
// detector mid-seek.
func (s *Session) SeekTo(pos time.Duration) {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return
	}
	if pos < 0 {
		pos = 0
	}
	if s.duration > 0 && pos > s.duration {
		pos = s.duration
	}
	s.seeking = true
	s.position = pos
	gen := s.generation
	id := s.current.ID
	s.mu.Unlock()

	s.emitPosition(pos)

	go func() {
		s.engine.SeekTo(pos)
		s.mu.Lock()
		if gen == s.generation {
			s.seeking = false
		}
		s.mu.Unlock()
		s.cp.Throttled(id, pos.Seconds())
	}()
}

// SkipForward seeks ahead by the configured interval.
func (s *Session) SkipForward() {
	s.SeekTo(s.Position() + s.cfg.SkipForward)
}

// SkipBackward seeks back by the configured interval.
func (s *Session) SkipBackward() {
	s.SeekTo(s.Position() - s.cfg.SkipBackward)
}

// Stop checkpoints the final position, clears now-playing, tears down the
// engine binding and resets to Idle.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.state.IsActive() {
		s.mu.Unlock()
		return
	}
	prev := s.current
	pos := s.position
	oldState := s.state
	s.generation++
	gen := s.generation
	s.state = StateIdle
	s.current = nil
	s.seeking = false
	s.mu.Unlock()

	if prev != nil {
		s.cp.Immediate(prev.ID, pos.Seconds())
	}
	s.engine.Unload()

	go s.publishNowPlaying(gen, "", false)

	s.emitState(StateChange{Previous: oldState, Current: StateIdle})
	s.emitEpisode(EpisodeChange{Previous: prev, Current: nil})
}

// fail moves the session to Failed and settles back to Idle. No retry; the
// failure degrades to "no audio is playing".
func (s *Session) fail(gen int, op, episodeID string, err error) {
	s.mu.Lock()
	if s.closed || gen != s.generation {
		s.mu.Unlock()
		return // a newer start superseded this one
	}
	oldState := s.state
	prev := s.current
	s.generation++
	failGen := s.generation
	s.state = StateFailed
	s.current = nil
	s.seeking = false
	s.mu.Unlock()

	s.log.Warn("playback failed",
		zap.String("operation", op), zap.String("episode", episodeID), zap.Error(err))
	s.emitState(StateChange{Previous: oldState, Current: StateFailed})
	s.emitError(ErrorEvent{Operation: op, EpisodeID: episodeID, Err: err})
	if prev != nil {
		s.emitEpisode(EpisodeChange{Previous: prev, Current: nil})
	}

	go s.publishNowPlaying(failGen, "", false)

	s.mu.Lock()
	settled := s.state == StateFailed
	if settled {
		s.state = StateIdle
	}
	s.mu.Unlock()
	if settled {
		s.emitState(StateChange{Previous: StateFailed, Current: StateIdle})
	}
}

func (s *Session) handleEngineFailure(ev engine.Event) {
	s.mu.Lock()
	if s.current == nil || ev.URL != s.current.EnclosureURL || !s.state.IsActive() {
		s.mu.Unlock()
		return
	}
	gen := s.generation
	id := s.current.ID
	s.mu.Unlock()
	s.fail(gen, "playback", id, ev.Err)
}

// RestoreDisplay binds an episode for display without starting audio, used at
// startup to show where the listener left off.
func (s *Session) RestoreDisplay(ep episode.Episode, pos time.Duration) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return
	}
	cur := ep
	s.current = &cur
	s.position = pos
	s.duration = time.Duration(ep.EffectiveDuration() * float64(time.Second))
	s.mu.Unlock()

	s.emitEpisode(EpisodeChange{Previous: nil, Current: &cur})
	s.emitPosition(pos)
}

// UserPaused reports whether the current pause was user-intended rather than
// a system interruption; resume heuristics treat only the former as sticky.
func (s *Session) UserPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StatePaused && s.userPaused
}

// Status returns a snapshot of the live projection.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Position: s.position,
		Duration: s.duration,
		State:    s.state,
	}
	if s.current != nil {
		cur := *s.current
		st.Episode = &cur
	}
	return st
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the bound episode, or nil.
func (s *Session) Current() *episode.Episode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	cur := *s.current
	return &cur
}

// Position returns the current in-memory position.
func (s *Session) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// Duration returns the bound episode's duration.
func (s *Session) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

// Subscribe creates a new event subscription.
func (s *Session) Subscribe() *Subscription {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	sub := newSubscription()
	s.subs = append(s.subs, sub)
	return sub
}

// Close shuts down the session, flushing any pending checkpoint.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.generation++
	var id string
	var pos time.Duration
	if s.current != nil && s.state.IsActive() {
		id = s.current.ID
		pos = s.position
	}
	close(s.done)
	s.mu.Unlock()

	if id != "" {
		s.cp.Immediate(id, pos.Seconds())
	}
	s.cp.Close()

	s.subsMu.Lock()
	for _, sub := range s.subs {
		sub.close()
	}
	s.subs = nil
	s.subsMu.Unlock()

	return nil
}

func (s *Session) emitState(e StateChange) {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	for _, sub := range s.subs {
		sub.sendState(e)
	}
}

func (s *Session) emitEpisode(e EpisodeChange) {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	for _, sub := range s.subs {
		sub.sendEpisode(e)
	}
}

func (s *Session) emitPosition(pos time.Duration) {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	for _, sub := range s.subs {
		sub.sendPosition(pos)
	}
}

func (s *Session) emitError(e ErrorEvent) {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	for _, sub := range s.subs {
		sub.sendError(e)
	}
}
