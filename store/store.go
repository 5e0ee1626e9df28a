// Package store implements a sharded in-memory map from key to
// (value, expiry) with per-entry TTL, lazy expiration on read, an optional
// periodic sweep, and eviction notifications.
//
// The store is the single shared resource of the caching layer. It never
// fails under normal operation: a miss, an expired entry, and a closed
// store all surface as "value absent". All methods are safe for concurrent
// use by multiple goroutines.
package store

import (
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/refreshcache/internal/util"
)

// Reason explains why an entry left the store.
type Reason int

const (
	// ReasonDeleted — removed by an explicit Delete call.
	ReasonDeleted Reason = iota
	// ReasonExpired — removed because its TTL deadline passed
	// (lazily on read or by the background sweep).
	ReasonExpired
)

// String returns a stable label for the reason, suitable for metrics.
func (r Reason) String() string {
	if r == ReasonExpired {
		return "expired"
	}
	return "deleted"
}

// Hook is an eviction notification. It fires exactly once per removal,
// after the shard lock is released, so it may safely call back into the
// store (e.g. to re-populate the key).
type Hook[K comparable, V any] func(k K, v V, reason Reason)

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Options configures a Store. Zero values are safe:
//   - Shards <= 0        => auto (rounded up to a power of two)
//   - SweepInterval <= 0 => no background sweep (lazy expiry still applies)
//   - nil Clock          => time.Now
type Options[K comparable, V any] struct {
	// Shards defines the number of shards. If 0, an automatic value is
	// chosen (≈ 2*GOMAXPROCS) and rounded to the next power of two.
	Shards int

	// SweepInterval is the period of the background scan that removes
	// expired entries and fires OnEvict for each. Non-positive disables
	// the sweep; expired entries are then reclaimed only on access.
	SweepInterval time.Duration

	// OnEvict is called once per removed entry with the removal reason.
	// It runs outside the shard lock.
	OnEvict Hook[K, V]

	// Clock allows overriding the time source (tests). Nil => time.Now().
	Clock Clock
}

// Stats is a snapshot of the store's hot counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions uint64
}

// Store is a sharded mapping from key to (value, expiry).
type Store[K comparable, V any] struct {
	shards []*shard[K, V]
	hash   func(K) uint64
	opt    Options[K, V]

	closed atomic.Bool
	stop   chan struct{}
	done   chan struct{}
}

// New constructs a Store and, if SweepInterval is positive, starts the
// background sweep goroutine. The Store owns that goroutine; call Close
// to stop it.
func New[K comparable, V any](opt Options[K, V]) *Store[K, V] {
	sh := opt.Shards
	if sh <= 0 {
		sh = util.ReasonableShardCount()
	} else {
		sh = int(util.NextPow2(uint64(sh)))
	}

	s := &Store[K, V]{
		shards: make([]*shard[K, V], sh),
		hash:   util.Fnv64a[K],
		opt:    opt,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = newShard[K, V]()
	}

	if opt.SweepInterval > 0 {
		go s.sweepLoop()
	} else {
		close(s.done)
	}
	return s
}

// Get returns the value for k and a presence flag.
// An entry past its deadline is evicted (ReasonExpired) and reported as
// a miss; readers never observe genuinely expired data beyond the sweep
// interval's lag.
func (s *Store[K, V]) Get(k K) (V, bool) {
	var zero V
	if s.closed.Load() {
		return zero, false
	}
	sh := s.getShard(k)
	now := s.now()

	v, state := sh.get(k, now)
	switch state {
	case hitFresh:
		return v, true
	case hitExpired:
		if old, ok := sh.remove(k, now); ok {
			s.notify(k, old, ReasonExpired)
		}
	}
	return zero, false
}

// Put inserts or replaces the entry, stamping the deadline relative to the
// write time. A non-positive ttl means the entry never expires.
// Put never fires OnEvict.
func (s *Store[K, V]) Put(k K, v V, ttl time.Duration) {
	if s.closed.Load() {
		return
	}
	s.getShard(k).put(k, v, s.deadline(ttl))
}

// Update reads the current value (ok=false when absent or expired), applies
// merge, and stores the result — all in one critical section for the key.
// No Put or Update for the same key can interleave between the read and the
// write. The stored entry's deadline is stamped at write completion time.
// Returns the resolved value.
func (s *Store[K, V]) Update(k K, merge func(old V, ok bool) V, ttl time.Duration) V {
	if s.closed.Load() {
		var zero V
		return zero
	}
	return s.getShard(k).update(k, merge, s.now(), s.deadline(ttl))
}

// Delete removes the entry immediately and fires OnEvict with
// ReasonDeleted. Returns true if the entry existed.
func (s *Store[K, V]) Delete(k K) bool {
	if s.closed.Load() {
		return false
	}
	v, ok := s.getShard(k).delete(k)
	if ok {
		s.notify(k, v, ReasonDeleted)
	}
	return ok
}

// Len returns the number of resident entries across all shards, including
// entries that have expired but not yet been reclaimed.
func (s *Store[K, V]) Len() int {
	total := 0
	for _, sh := range s.shards {
		total += sh.len()
	}
	return total
}

// Keys returns a snapshot of the resident keys in no particular order.
func (s *Store[K, V]) Keys() []K {
	var out []K
	for _, sh := range s.shards {
		out = sh.appendKeys(out)
	}
	return out
}

// Stats aggregates the per-shard hot counters.
func (s *Store[K, V]) Stats() Stats {
	var st Stats
	for _, sh := range s.shards {
		st.Hits += sh.hits.Load()
		st.Misses += sh.misses.Load()
		st.Evictions += sh.evicts.Load()
	}
	return st
}

// Close stops the sweep goroutine and marks the store closed.
// Future operations are ignored. Close is safe to call multiple times.
func (s *Store[K, V]) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.stop)
	<-s.done
	return nil
}

// ---- helpers ----

func (s *Store[K, V]) getShard(k K) *shard[K, V] {
	// len(s.shards) is guaranteed to be a power of two.
	return s.shards[int(s.hash(k))&(len(s.shards)-1)]
}

func (s *Store[K, V]) now() int64 {
	if s.opt.Clock != nil {
		return s.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}

// deadline converts a relative TTL into an absolute UnixNano deadline.
// A non-positive ttl returns 0 (no expiration).
func (s *Store[K, V]) deadline(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return s.now() + int64(ttl)
}

func (s *Store[K, V]) notify(k K, v V, r Reason) {
	if cb := s.opt.OnEvict; cb != nil {
		cb(k, v, r)
	}
}
