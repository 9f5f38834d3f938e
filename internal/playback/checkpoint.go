package playback

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// checkpointer writes playback positions to the durable store. Two paths feed
// it: Immediate for pause/stop/completion, and Throttled for the periodic
// clock callback, which buffers the latest position and debounces to at most
// one write per minimum interval. Neither path blocks the caller; writes land
// on a single worker goroutine in submission order, so the last durable
// position always matches the last submitted one.
type checkpointer struct {
	persister Persister
	log       *zap.Logger

	mu          sync.Mutex
	minInterval time.Duration
	lastWrite   time.Time
	timer       *time.Timer
	pendingID   string
	pendingPos  float64

	writeMu  sync.Mutex
	writeCnd *sync.Cond
	writes   []positionWrite
	inflight int
	closed   bool
}

type positionWrite struct {
	id  string
	pos float64
}

func newCheckpointer(p Persister, log *zap.Logger, minInterval time.Duration) *checkpointer {
	c := &checkpointer{
		persister:   p,
		log:         log,
		minInterval: minInterval,
	}
	c.writeCnd = sync.NewCond(&c.writeMu)
	go c.writeLoop()
	return c
}

// Immediate enqueues the position for durable write without delay, cancelling
// any pending throttled write. The caller is not blocked on the store.
func (c *checkpointer) Immediate(id string, position float64) {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pendingID = ""
	c.lastWrite = time.Now()
	c.mu.Unlock()

	c.enqueue(id, position)
}

// Throttled buffers the position and schedules a durable write once the
// minimum interval since the last write has elapsed.
func (c *checkpointer) Throttled(id string, position float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pendingID = id
	c.pendingPos = position

	if c.timer != nil {
		return // a flush is already scheduled
	}

	elapsed := time.Since(c.lastWrite)
	if elapsed >= c.minInterval {
		c.flushLocked()
		return
	}
	c.timer = time.AfterFunc(c.minInterval-elapsed, func() {
		c.mu.Lock()
		c.timer = nil
		c.flushLocked()
		c.mu.Unlock()
	})
}

// Cancel drops any buffered position without writing it. Used on completion,
// where a stale near-end position must not land after the played reset.
func (c *checkpointer) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pendingID = ""
}

// Flush submits any buffered position and blocks until every enqueued write
// has been applied.
func (c *checkpointer) Flush() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.flushLocked()
	c.mu.Unlock()

	c.writeMu.Lock()
	for len(c.writes) > 0 || c.inflight > 0 {
		c.writeCnd.Wait()
	}
	c.writeMu.Unlock()
}

// Close drains pending writes and stops the worker.
func (c *checkpointer) Close() {
	c.Flush()
	c.writeMu.Lock()
	c.closed = true
	c.writeCnd.Broadcast()
	c.writeMu.Unlock()
}

func (c *checkpointer) flushLocked() {
	if c.pendingID == "" {
		return
	}
	id, pos := c.pendingID, c.pendingPos
	c.pendingID = ""
	c.lastWrite = time.Now()
	c.enqueue(id, pos)
}

func (c *checkpointer) enqueue(id string, pos float64) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return
	}
	c.writes = append(c.writes, positionWrite{id, pos})
	c.writeCnd.Signal()
}

func (c *checkpointer) writeLoop() {
	for {
		c.writeMu.Lock()
		for len(c.writes) == 0 && !c.closed {
			c.writeCnd.Wait()
		}
		if len(c.writes) == 0 && c.closed {
			c.writeMu.Unlock()
			return
		}
		w := c.writes[0]
		c.writes = c.writes[1:]
		c.inflight++
		c.writeMu.Unlock()

		c.write(w.id, w.pos)

		c.writeMu.Lock()
		c.inflight--
		c.writeCnd.Broadcast()
		c.writeMu.Unlock()
	}
}

// write persists the position and the restore state. Failures are logged and
// the optimistic in-memory state kept; a later write reconciles.
func (c *checkpointer) write(id string, position float64) {
	if err := c.persister.Checkpoint(id, position); err != nil {
		c.log.Warn("position checkpoint failed", zap.String("episode", id), zap.Error(err))
		return
	}
	if err := c.persister.SaveRestore(id, position); err != nil {
		c.log.Warn("restore state save failed", zap.String("episode", id), zap.Error(err))
	}
}
