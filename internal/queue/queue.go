// Package queue owns the ordered playback queue. Mutations update an
// in-memory snapshot synchronously so callers see the new order immediately,
// then enqueue a durable write handled by a single background worker. Queue
// positions over the queued set always form a contiguous 0..N-1 sequence.
package queue

import (
	"sync"

	"go.uber.org/zap"

	"github.com/llehouerou/earshot/internal/episode"
)

// Persister is the durable side of the queue: the initial load and the
// write-behind target. *store.Store satisfies it.
type Persister interface {
	Queued() ([]episode.Episode, error)
	SaveQueue(orderedIDs []string) error
}

// Store maintains the queue snapshot and its persistence.
type Store struct {
	mu       sync.Mutex
	episodes []episode.Episode

	persister Persister
	log       *zap.Logger

	writeMu  sync.Mutex
	writeCnd *sync.Cond
	writes   [][]string
	inflight int
	closed   bool
}

// New creates a queue store, loading the initial snapshot from the persister
// and starting the write-behind worker.
func New(p Persister, log *zap.Logger) (*Store, error) {
	queued, err := p.Queued()
	if err != nil {
		return nil, err
	}
	s := &Store{
		episodes:  queued,
		persister: p,
		log:       log,
	}
	s.writeCnd = sync.NewCond(&s.writeMu)
	go s.writeLoop()
	return s, nil
}

// Episodes returns a copy of the queue in order.
func (s *Store) Episodes() []episode.Episode {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]episode.Episode, len(s.episodes))
	copy(out, s.episodes)
	return out
}

// Head returns the first queued episode, or nil if the queue is empty.
func (s *Store) Head() *episode.Episode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.episodes) == 0 {
		return nil
	}
	e := s.episodes[0]
	return &e
}

// Len returns the queue length.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.episodes)
}

// Contains reports whether the episode is queued.
func (s *Store) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOf(id) >= 0
}

// AddToFront inserts the episode at position 0. When a previous now-playing
// episode is supplied and differs, it is relocated to position 1 so it stays
// next in line. An already-queued episode is moved rather than duplicated.
func (s *Store) AddToFront(ep episode.Episode, pushingBack *episode.Episode) {
	s.mu.Lock()
	s.removeLocked(ep.ID)
	s.episodes = append([]episode.Episode{ep}, s.episodes...)

	if pushingBack != nil && pushingBack.ID != ep.ID {
		if i := s.indexOf(pushingBack.ID); i > 1 {
			moved := s.episodes[i]
			s.episodes = append(s.episodes[:i], s.episodes[i+1:]...)
			rest := append([]episode.Episode{moved}, s.episodes[1:]...)
			s.episodes = append(s.episodes[:1], rest...)
		}
	}

	s.renumberLocked()
	s.enqueueWrite(s.idsLocked())
	s.mu.Unlock()
}

// Toggle removes the episode if queued, otherwise appends it at the end.
func (s *Store) Toggle(ep episode.Episode) {
	s.mu.Lock()
	if i := s.indexOf(ep.ID); i >= 0 {
		s.episodes = append(s.episodes[:i], s.episodes[i+1:]...)
	} else {
		ep.IsQueued = true
		ep.IsSaved = false
		s.episodes = append(s.episodes, ep)
	}
	s.renumberLocked()
	s.enqueueWrite(s.idsLocked())
	s.mu.Unlock()
}

// Remove removes the episode and closes the position gap.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	if !s.removeLocked(id) {
		s.mu.Unlock()
		return
	}
	s.renumberLocked()
	s.enqueueWrite(s.idsLocked())
	s.mu.Unlock()
}

// MoveTo repositions the episode to the given index, clamped to the queue.
func (s *Store) MoveTo(id string, position int) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	moved := s.episodes[i]
	s.episodes = append(s.episodes[:i], s.episodes[i+1:]...)
	if position < 0 {
		position = 0
	}
	if position > len(s.episodes) {
		position = len(s.episodes)
	}
	rest := append([]episode.Episode{moved}, s.episodes[position:]...)
	s.episodes = append(s.episodes[:position], rest...)
	s.renumberLocked()
	s.enqueueWrite(s.idsLocked())
	s.mu.Unlock()
}

// Reorder applies a full new ordering. IDs not currently queued are ignored;
// queued episodes missing from the ordering keep their relative order at the
// end.
func (s *Store) Reorder(orderedIDs []string) {
	s.mu.Lock()
	byID := make(map[string]episode.Episode, len(s.episodes))
	for _, e := range s.episodes {
		byID[e.ID] = e
	}
	reordered := make([]episode.Episode, 0, len(s.episodes))
	seen := make(map[string]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if e, ok := byID[id]; ok && !seen[id] {
			reordered = append(reordered, e)
			seen[id] = true
		}
	}
	for _, e := range s.episodes {
		if !seen[e.ID] {
			reordered = append(reordered, e)
		}
	}
	s.episodes = reordered
	s.renumberLocked()
	s.enqueueWrite(s.idsLocked())
	s.mu.Unlock()
}

func (s *Store) indexOf(id string) int {
	for i, e := range s.episodes {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) removeLocked(id string) bool {
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.episodes = append(s.episodes[:i], s.episodes[i+1:]...)
	return true
}

// renumberLocked restores the contiguous position invariant. Queue membership
// also clears the saved flag on the snapshot; the durable side does the same
// in SaveQueue.
func (s *Store) renumberLocked() {
	for i := range s.episodes {
		s.episodes[i].IsQueued = true
		s.episodes[i].QueuePosition = i
		s.episodes[i].IsSaved = false
	}
}

func (s *Store) idsLocked() []string {
	ids := make([]string, len(s.episodes))
	for i, e := range s.episodes {
		ids[i] = e.ID
	}
	return ids
}
