package engine

import (
	"sync"
	"time"
)

// Mock is a test double for the engine. Tests drive it directly: set position,
// duration and rate, then emit ticks or completion.
type Mock struct {
	mu       sync.Mutex
	loadedAt string
	loaded   bool
	playing  bool
	position time.Duration
	duration time.Duration

	loadErr    error
	silentLoad bool
	loadCalls  []string
	seekCalls  []time.Duration

	events chan Event
}

// NewMock creates a mock engine.
func NewMock() *Mock {
	// Unbuffered so Emit returns only once the consumer has taken the event.
	return &Mock{events: make(chan Event)}
}

func (m *Mock) Load(url string) error {
	m.mu.Lock()
	m.loadCalls = append(m.loadCalls, url)
	if m.loadErr != nil {
		err := m.loadErr
		m.mu.Unlock()
		return err
	}
	m.loadedAt = url
	m.loaded = true
	m.playing = false
	m.position = 0
	silent := m.silentLoad
	m.mu.Unlock()

	if !silent {
		m.Emit(Event{Kind: EventReady})
	}
	return nil
}

func (m *Mock) Unload() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = false
	m.playing = false
	m.loadedAt = ""
}

func (m *Mock) Play() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded {
		m.playing = true
	}
}

func (m *Mock) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing = false
}

func (m *Mock) SeekTo(pos time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seekCalls = append(m.seekCalls, pos)
	m.position = pos
}

func (m *Mock) Position() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

func (m *Mock) Duration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}

func (m *Mock) Rate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playing {
		return 1
	}
	return 0
}

func (m *Mock) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

func (m *Mock) Events() <-chan Event {
	return m.events
}

func (m *Mock) Close() error {
	return nil
}

// Test helpers

// Emit delivers an event to the session, blocking until consumed so tests can
// sequence deterministically. Events without an explicit URL are stamped with
// the currently bound one; a test passing its own URL simulates a late event
// from a superseded binding.
func (m *Mock) Emit(e Event) {
	if e.URL == "" {
		m.mu.Lock()
		e.URL = m.loadedAt
		m.mu.Unlock()
	}
	m.events <- e
}

// Tick sets the clock and emits a tick at that position.
func (m *Mock) Tick(pos time.Duration) {
	m.mu.Lock()
	m.position = pos
	m.mu.Unlock()
	m.Emit(Event{Kind: EventTick, Position: pos})
}

func (m *Mock) SetDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duration = d
}

func (m *Mock) SetPosition(pos time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position = pos
}

func (m *Mock) SetRate(playing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing = playing
}

// SetSilentLoad makes Load succeed without emitting the ready event,
// simulating a source that binds but never starts delivering.
func (m *Mock) SetSilentLoad(silent bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.silentLoad = silent
}

func (m *Mock) SetLoadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}

func (m *Mock) LoadCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.loadCalls))
	copy(out, m.loadCalls)
	return out
}

func (m *Mock) SeekCalls() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.seekCalls))
	copy(out, m.seekCalls)
	return out
}

// LoadedURL returns the currently bound URL.
func (m *Mock) LoadedURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadedAt
}

// Verify Mock implements Interface at compile time.
var _ Interface = (*Mock)(nil)
