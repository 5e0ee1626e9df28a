package store

import (
	"sync"

	"github.com/IvanBrykalov/refreshcache/internal/util"
)

// entry pairs a value with its absolute UnixNano deadline (0 = no TTL).
// Entries are replaced wholesale under the shard lock; values are never
// mutated in place, so readers always observe a complete value.
type entry[V any] struct {
	val V
	exp int64
}

func (e entry[V]) expired(now int64) bool {
	return e.exp != 0 && now > e.exp
}

// getState distinguishes the three outcomes of a shard read.
type getState int

const (
	missAbsent getState = iota
	hitFresh
	hitExpired
)

// shard is an independent partition of the store with its own lock and map.
type shard[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]entry[V]

	// Hot counters on separate cache lines to avoid false sharing.
	hits   util.PaddedAtomicInt64
	misses util.PaddedAtomicInt64
	evicts util.PaddedAtomicUint64
}

func newShard[K comparable, V any]() *shard[K, V] {
	return &shard[K, V]{m: make(map[K]entry[V])}
}

// get reads under RLock only. Expired entries are reported, not removed;
// the caller upgrades to remove so the eviction hook can fire outside any
// lock this method holds.
func (sh *shard[K, V]) get(k K, now int64) (V, getState) {
	sh.mu.RLock()
	e, ok := sh.m[k]
	sh.mu.RUnlock()

	if !ok {
		sh.misses.Add(1)
		var zero V
		return zero, missAbsent
	}
	if e.expired(now) {
		sh.misses.Add(1)
		return e.val, hitExpired
	}
	sh.hits.Add(1)
	return e.val, hitFresh
}

// remove deletes k only if it is still expired at now. The re-check matters:
// a Put may have raced in between the read and this call, and the fresh
// value must survive. Returns the removed value.
func (sh *shard[K, V]) remove(k K, now int64) (V, bool) {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.m[k]
	if !ok || !e.expired(now) {
		var zero V
		return zero, false
	}
	delete(sh.m, k)
	sh.evicts.Add(1)
	return e.val, true
}

func (sh *shard[K, V]) put(k K, v V, exp int64) {
	sh.mu.Lock()
	sh.m[k] = entry[V]{val: v, exp: exp}
	sh.mu.Unlock()
}

// update is the per-key critical section: read, merge, write under one lock
// acquisition. An expired resident value is presented to merge as absent.
func (sh *shard[K, V]) update(k K, merge func(old V, ok bool) V, now, exp int64) V {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.m[k]
	if ok && e.expired(now) {
		ok = false
	}
	resolved := merge(e.val, ok)
	sh.m[k] = entry[V]{val: resolved, exp: exp}
	return resolved
}

func (sh *shard[K, V]) delete(k K) (V, bool) {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.m[k]
	if !ok {
		// e is the zero entry here, so e.val is the zero V.
		return e.val, false
	}
	delete(sh.m, k)
	return e.val, true
}

// collectExpired removes every expired entry and returns the evicted pairs
// so the caller can fire hooks after releasing the lock.
func (sh *shard[K, V]) collectExpired(now int64) []evicted[K, V] {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	var out []evicted[K, V]
	for k, e := range sh.m {
		if e.expired(now) {
			delete(sh.m, k)
			sh.evicts.Add(1)
			out = append(out, evicted[K, V]{k: k, v: e.val})
		}
	}
	return out
}

func (sh *shard[K, V]) len() int {
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return len(sh.m)
}

func (sh *shard[K, V]) appendKeys(dst []K) []K {
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	for k := range sh.m {
		dst = append(dst, k)
	}
	return dst
}

type evicted[K comparable, V any] struct {
	k K
	v V
}
