package playback

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func setupCheckpointer(minInterval time.Duration) (*checkpointer, *fakePersister) {
	p := newFakePersister()
	return newCheckpointer(p, zap.NewNop(), minInterval), p
}

func waitForCheckpoints(t *testing.T, p *fakePersister, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(p.checkpointCalls()) >= want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d checkpoints, have %d", want, len(p.checkpointCalls()))
}

func TestImmediateSkipsThrottleWindow(t *testing.T) {
	cp, p := setupCheckpointer(time.Hour)

	cp.Immediate("ep1", 10)
	cp.Flush()

	calls := p.checkpointCalls()
	if len(calls) != 1 || calls[0] != (checkpointCall{"ep1", 10}) {
		t.Errorf("checkpoints = %v, want [{ep1 10}]", calls)
	}
	// The restore state rides along with every position write.
	r := p.lastRestore()
	if r == nil || r.id != "ep1" || r.pos != 10 {
		t.Errorf("restore = %v, want {ep1 10}", r)
	}
}

func TestImmediateDoesNotBlockOnStore(t *testing.T) {
	p := newFakePersister()
	p.setCheckpointDelay(500 * time.Millisecond)
	cp := newCheckpointer(p, zap.NewNop(), time.Hour)

	start := time.Now()
	cp.Immediate("ep1", 10)
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Errorf("Immediate blocked for %v on a slow store", elapsed)
	}

	cp.Flush()
	calls := p.checkpointCalls()
	if len(calls) != 1 || calls[0] != (checkpointCall{"ep1", 10}) {
		t.Errorf("checkpoints = %v, want [{ep1 10}]", calls)
	}
}

func TestWritesLandInSubmissionOrder(t *testing.T) {
	cp, p := setupCheckpointer(time.Hour)

	cp.Immediate("ep1", 1)
	cp.Immediate("ep1", 2)
	cp.Immediate("ep1", 3)
	cp.Flush()

	calls := p.checkpointCalls()
	want := []checkpointCall{{"ep1", 1}, {"ep1", 2}, {"ep1", 3}}
	if len(calls) != len(want) {
		t.Fatalf("got %d checkpoints, want %d", len(calls), len(want))
	}
	for i, c := range calls {
		if c != want[i] {
			t.Errorf("checkpoint[%d] = %v, want %v", i, c, want[i])
		}
	}
}

func TestThrottledDebounces(t *testing.T) {
	cp, p := setupCheckpointer(50 * time.Millisecond)

	// First write goes through: nothing was written recently.
	cp.Throttled("ep1", 1)
	waitForCheckpoints(t, p, 1)

	// A burst inside the window buffers; only the latest position lands.
	cp.Throttled("ep1", 2)
	cp.Throttled("ep1", 3)
	cp.Throttled("ep1", 4)

	waitForCheckpoints(t, p, 2)
	calls := p.checkpointCalls()
	if len(calls) != 2 {
		t.Fatalf("got %d checkpoints, want 2", len(calls))
	}
	if calls[1] != (checkpointCall{"ep1", 4}) {
		t.Errorf("second checkpoint = %v, want latest position 4", calls[1])
	}
}

func TestImmediateCancelsPendingThrottled(t *testing.T) {
	cp, p := setupCheckpointer(50 * time.Millisecond)

	cp.Throttled("ep1", 1)
	waitForCheckpoints(t, p, 1)
	cp.Throttled("ep1", 2) // buffered behind the window

	cp.Immediate("ep1", 99)

	time.Sleep(100 * time.Millisecond)
	calls := p.checkpointCalls()
	if len(calls) != 2 {
		t.Fatalf("got %d checkpoints, want 2 (buffered write dropped)", len(calls))
	}
	if calls[1] != (checkpointCall{"ep1", 99}) {
		t.Errorf("final checkpoint = %v, want {ep1 99}", calls[1])
	}
}

func TestCancelDropsBuffered(t *testing.T) {
	cp, p := setupCheckpointer(50 * time.Millisecond)

	cp.Throttled("ep1", 1)
	waitForCheckpoints(t, p, 1)
	cp.Throttled("ep1", 2)
	cp.Cancel()

	time.Sleep(100 * time.Millisecond)
	if calls := p.checkpointCalls(); len(calls) != 1 {
		t.Errorf("got %d checkpoints after cancel, want 1", len(calls))
	}
}

func TestFlushWritesBuffered(t *testing.T) {
	cp, p := setupCheckpointer(time.Hour)

	cp.Immediate("ep1", 1)
	cp.Throttled("ep1", 2) // buffered: the hour window has not elapsed
	cp.Flush()

	waitForCheckpoints(t, p, 2)
	calls := p.checkpointCalls()
	if calls[1] != (checkpointCall{"ep1", 2}) {
		t.Errorf("flushed checkpoint = %v, want {ep1 2}", calls[1])
	}
}
