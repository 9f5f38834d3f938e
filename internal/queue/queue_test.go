package queue

import (
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/llehouerou/earshot/internal/episode"
)

// fakePersister records SaveQueue calls in order.
type fakePersister struct {
	mu      sync.Mutex
	initial []episode.Episode
	saves   [][]string
	saveErr error
}

func (f *fakePersister) Queued() ([]episode.Episode, error) {
	return f.initial, nil
}

func (f *fakePersister) SaveQueue(orderedIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	ids := make([]string, len(orderedIDs))
	copy(ids, orderedIDs)
	f.saves = append(f.saves, ids)
	return nil
}

func (f *fakePersister) lastSave() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saves) == 0 {
		return nil
	}
	return f.saves[len(f.saves)-1]
}

func ep(id string) episode.Episode {
	return episode.Episode{ID: id, PodcastID: "pod", Title: "Episode " + id}
}

func setupQueue(t *testing.T, initial ...episode.Episode) (*Store, *fakePersister) {
	t.Helper()
	p := &fakePersister{initial: initial}
	s, err := New(p, zap.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(s.Close)
	return s, p
}

// checkContiguous verifies the position invariant on the snapshot.
func checkContiguous(t *testing.T, s *Store) {
	t.Helper()
	for i, e := range s.Episodes() {
		if !e.IsQueued {
			t.Errorf("episodes[%d] (%s) not flagged queued", i, e.ID)
		}
		if e.QueuePosition != i {
			t.Errorf("episodes[%d] (%s) position = %d, want %d", i, e.ID, e.QueuePosition, i)
		}
		if e.IsSaved {
			t.Errorf("episodes[%d] (%s) still flagged saved", i, e.ID)
		}
	}
}

func ids(s *Store) []string {
	eps := s.Episodes()
	out := make([]string, len(eps))
	for i, e := range eps {
		out[i] = e.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewLoadsSnapshot(t *testing.T) {
	s, _ := setupQueue(t, ep("a"), ep("b"))

	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}
	if h := s.Head(); h == nil || h.ID != "a" {
		t.Errorf("Head = %v, want a", h)
	}
	if !s.Contains("b") {
		t.Error("Contains(b) = false")
	}
	if s.Contains("x") {
		t.Error("Contains(x) = true")
	}
}

func TestAddToFrontNewEpisode(t *testing.T) {
	s, p := setupQueue(t, ep("a"), ep("b"))

	s.AddToFront(ep("x"), nil)

	if got := ids(s); !equalIDs(got, []string{"x", "a", "b"}) {
		t.Errorf("queue = %v, want [x a b]", got)
	}
	checkContiguous(t, s)

	s.Flush()
	if got := p.lastSave(); !equalIDs(got, []string{"x", "a", "b"}) {
		t.Errorf("durable queue = %v, want [x a b]", got)
	}
}

func TestAddToFrontMovesQueuedEpisode(t *testing.T) {
	s, _ := setupQueue(t, ep("a"), ep("b"), ep("c"))

	// Listener jumps to c while a was playing: c goes first, a stays next.
	s.AddToFront(ep("c"), &episode.Episode{ID: "a"})

	if got := ids(s); !equalIDs(got, []string{"c", "a", "b"}) {
		t.Errorf("queue = %v, want [c a b]", got)
	}
	checkContiguous(t, s)
}

func TestAddToFrontPushesBackInterrupted(t *testing.T) {
	s, _ := setupQueue(t, ep("a"), ep("b"), ep("c"))

	// c was playing, listener starts x: x first, c relocated to second.
	s.AddToFront(ep("x"), &episode.Episode{ID: "c"})

	if got := ids(s); !equalIDs(got, []string{"x", "c", "a", "b"}) {
		t.Errorf("queue = %v, want [x c a b]", got)
	}
	checkContiguous(t, s)
}

func TestAddToFrontIdempotent(t *testing.T) {
	s, _ := setupQueue(t, ep("a"), ep("b"))

	s.AddToFront(ep("a"), &episode.Episode{ID: "a"})

	if got := ids(s); !equalIDs(got, []string{"a", "b"}) {
		t.Errorf("queue = %v, want [a b] (no duplicate)", got)
	}
	checkContiguous(t, s)
}

func TestToggle(t *testing.T) {
	s, _ := setupQueue(t, ep("a"))

	s.Toggle(ep("b"))
	if got := ids(s); !equalIDs(got, []string{"a", "b"}) {
		t.Errorf("queue after add = %v, want [a b]", got)
	}

	s.Toggle(ep("a"))
	if got := ids(s); !equalIDs(got, []string{"b"}) {
		t.Errorf("queue after remove = %v, want [b]", got)
	}
	checkContiguous(t, s)
}

func TestRemoveClosesGap(t *testing.T) {
	s, _ := setupQueue(t, ep("a"), ep("b"), ep("c"))

	s.Remove("b")

	if got := ids(s); !equalIDs(got, []string{"a", "c"}) {
		t.Errorf("queue = %v, want [a c]", got)
	}
	checkContiguous(t, s)
}

func TestRemoveMissingIsNoop(t *testing.T) {
	s, p := setupQueue(t, ep("a"))

	s.Remove("x")
	s.Flush()

	if got := ids(s); !equalIDs(got, []string{"a"}) {
		t.Errorf("queue = %v, want [a]", got)
	}
	if len(p.saves) != 0 {
		t.Errorf("no-op remove produced %d writes", len(p.saves))
	}
}

func TestMoveTo(t *testing.T) {
	s, _ := setupQueue(t, ep("a"), ep("b"), ep("c"), ep("d"))

	s.MoveTo("d", 1)
	if got := ids(s); !equalIDs(got, []string{"a", "d", "b", "c"}) {
		t.Errorf("queue = %v, want [a d b c]", got)
	}

	// Out-of-range targets clamp to the ends.
	s.MoveTo("a", 99)
	if got := ids(s); !equalIDs(got, []string{"d", "b", "c", "a"}) {
		t.Errorf("queue = %v, want [d b c a]", got)
	}
	s.MoveTo("c", -5)
	if got := ids(s); !equalIDs(got, []string{"c", "d", "b", "a"}) {
		t.Errorf("queue = %v, want [c d b a]", got)
	}
	checkContiguous(t, s)
}

func TestReorder(t *testing.T) {
	s, _ := setupQueue(t, ep("a"), ep("b"), ep("c"))

	// Unknown IDs are ignored, omitted episodes keep relative order at the end.
	s.Reorder([]string{"c", "x", "a"})

	if got := ids(s); !equalIDs(got, []string{"c", "a", "b"}) {
		t.Errorf("queue = %v, want [c a b]", got)
	}
	checkContiguous(t, s)
}

func TestWriteBehindOrder(t *testing.T) {
	s, p := setupQueue(t)

	s.Toggle(ep("a"))
	s.Toggle(ep("b"))
	s.Toggle(ep("c"))
	s.Flush()

	if s.PendingWrites() != 0 {
		t.Errorf("PendingWrites = %d after Flush, want 0", s.PendingWrites())
	}
	if len(p.saves) != 3 {
		t.Fatalf("got %d writes, want 3", len(p.saves))
	}
	if got := p.lastSave(); !equalIDs(got, []string{"a", "b", "c"}) {
		t.Errorf("final durable queue = %v, want [a b c]", got)
	}
}

func TestWriteFailureKeepsSnapshot(t *testing.T) {
	s, p := setupQueue(t, ep("a"))
	p.saveErr = errors.New("disk full")

	s.Toggle(ep("b"))
	s.Flush()

	// The optimistic snapshot survives a failed durable write.
	if got := ids(s); !equalIDs(got, []string{"a", "b"}) {
		t.Errorf("queue = %v, want [a b]", got)
	}
	checkContiguous(t, s)
}

func TestConcurrentMutations(t *testing.T) {
	s, p := setupQueue(t)

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			s.Toggle(ep(id))
		}(id)
	}
	wg.Wait()
	s.Flush()

	if s.Len() != 8 {
		t.Errorf("Len = %d, want 8", s.Len())
	}
	checkContiguous(t, s)

	// The last durable write matches the final snapshot.
	if got := p.lastSave(); !equalIDs(got, ids(s)) {
		t.Errorf("durable queue %v diverged from snapshot %v", got, ids(s))
	}
}
