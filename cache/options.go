package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/IvanBrykalov/refreshcache/store"
)

// Result is the outcome of a fallback computation. A resolved result is
// written back to the store with the instance TTL; a provisional result is
// handed to any attached waiter but never stored, so the next reader
// triggers a fresh computation.
type Result[V any] struct {
	value   V
	persist bool
}

// Resolved marks v as a real value: store it with the instance TTL.
func Resolved[V any](v V) Result[V] { return Result[V]{value: v, persist: true} }

// Provisional marks v as a placeholder: return it, do not store it.
func Provisional[V any](v V) Result[V] { return Result[V]{value: v} }

// Value returns the computed value.
func (r Result[V]) Value() V { return r.value }

// Persist reports whether the value is written back to the store.
func (r Result[V]) Persist() bool { return r.persist }

// Fallback computes the value for a missing or expired key. It runs on a
// background goroutine, never on a reader's path, and may perform blocking
// I/O. The context expires at the instance's refresh timeout; fallbacks
// should honor cancellation and return ctx.Err() when interrupted.
type Fallback[K comparable, V any] func(ctx context.Context, k K) (Result[V], error)

// Merge reconciles a write with the value already resident for the key.
// It runs inside the store's per-key critical section and must not block.
type Merge[V any] func(old, incoming V) V

// Options configures an Instance. Name, Keys and Fallback are required;
// everything else has a usable zero value:
//   - TTL <= 0            => entries never expire
//   - SweepInterval <= 0  => no background sweep (lazy expiry only)
//   - RefreshTimeout <= 0 => refresh.DefaultFlightDeadline
//   - nil Merge           => last-write-wins
//   - nil Metrics         => NoopMetrics
//   - nil Logger          => slog.Default()
type Options[K comparable, V any] struct {
	// Name is the stable instance identifier used for registration and
	// log/metric attribution.
	Name string

	// Keys declares the fixed, enumerable key set. Operations on a key
	// outside this set return Default and schedule no work.
	Keys []K

	// Default is the provisional value returned while no computed value
	// is resident (cold miss, expired entry, failed refresh).
	Default V

	// TTL applies to every stored value. Non-positive means no expiration.
	TTL time.Duration

	// SweepInterval drives the background eviction scan. Expired entries
	// found by the sweep trigger a pre-warming refresh; with the sweep
	// disabled, refresh happens on the next read instead.
	SweepInterval time.Duration

	// RefreshTimeout bounds a single fallback run. When it elapses the
	// in-flight marker is force-cleared even if the fallback is stuck.
	RefreshTimeout time.Duration

	// Shards overrides the store shard count (0 = auto).
	Shards int

	// Fallback computes missing values. Required.
	Fallback Fallback[K, V]

	// Merge reconciles Update calls and refresh write-backs with resident
	// values. Nil selects last-write-wins.
	Merge Merge[V]

	// Metrics receives hit/miss/evict/refresh signals. Nil => NoopMetrics.
	Metrics Metrics

	// Clock allows overriding the time source (tests). Nil => time.Now().
	Clock store.Clock

	// Logger records refresh failures and misuse; readers never see them.
	Logger *slog.Logger
}
