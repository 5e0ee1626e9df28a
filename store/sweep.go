package store

import "time"

// sweepLoop periodically scans all shards and removes expired entries.
//
// The scan is O(n) per tick and intentionally simple: the store holds a
// small, declared key set, so a timing wheel or expiry heap would buy
// nothing. Hooks fire after each shard's lock is released; a hook may
// therefore re-populate the key it was just notified about.
func (s *Store[K, V]) sweepLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.opt.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep performs one expiry pass. It is also called directly by tests.
func (s *Store[K, V]) sweep() {
	now := s.now()
	for _, sh := range s.shards {
		for _, ev := range sh.collectExpired(now) {
			s.notify(ev.k, ev.v, ReasonExpired)
		}
	}
}
