package queue

import "go.uber.org/zap"

// enqueueWrite hands a full queue ordering to the write-behind worker. Called
// with s.mu held so submission order matches mutation order; the worker
// applies writes in that order, so the last durable state always matches the
// last snapshot.
func (s *Store) enqueueWrite(ids []string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return
	}
	s.writes = append(s.writes, ids)
	s.writeCnd.Signal()
}

func (s *Store) writeLoop() {
	for {
		s.writeMu.Lock()
		for len(s.writes) == 0 && !s.closed {
			s.writeCnd.Wait()
		}
		if len(s.writes) == 0 && s.closed {
			s.writeMu.Unlock()
			return
		}
		ids := s.writes[0]
		s.writes = s.writes[1:]
		s.inflight++
		s.writeMu.Unlock()

		// A failed write is rolled back by the store; the snapshot is kept
		// as-is and a later write or store resync reconciles it.
		if err := s.persister.SaveQueue(ids); err != nil {
			s.log.Warn("queue save failed", zap.Error(err), zap.Int("episodes", len(ids)))
		}

		s.writeMu.Lock()
		s.inflight--
		s.writeCnd.Broadcast()
		s.writeMu.Unlock()
	}
}

// PendingWrites returns the number of durable writes not yet applied,
// including the one in flight. An observability hook for tests.
func (s *Store) PendingWrites() int {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return len(s.writes) + s.inflight
}

// Flush blocks until all enqueued writes have been applied.
func (s *Store) Flush() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	for len(s.writes) > 0 || s.inflight > 0 {
		s.writeCnd.Wait()
	}
}

// Close flushes pending writes and stops the worker.
func (s *Store) Close() {
	s.writeMu.Lock()
	for len(s.writes) > 0 || s.inflight > 0 {
		s.writeCnd.Wait()
	}
	s.closed = true
	s.writeCnd.Broadcast()
	s.writeMu.Unlock()
}
