package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/refreshcache/refresh"
	"github.com/IvanBrykalov/refreshcache/store"
)

// ErrUndeclaredKey is returned by GetOrCompute for a key outside the
// instance's declared key set.
var ErrUndeclaredKey = errors.New("cache: key not declared for this instance")

// Instance binds a TimedStore and a refresh Coordinator to a declared key
// set, a fallback computation, a merge policy, and a provisional default.
// All methods are safe for concurrent use by multiple goroutines.
type Instance[K comparable, V any] struct {
	opt    Options[K, V]
	keySet map[K]struct{}

	st    *store.Store[K, V]
	coord *refresh.Coordinator[K, V]
	log   *slog.Logger

	closed atomic.Bool
}

// New constructs an Instance and starts its background sweep (if any).
// It panics when Name, Keys or Fallback are missing: an instance without
// them is a construction bug, not a runtime condition.
func New[K comparable, V any](opt Options[K, V]) *Instance[K, V] {
	if opt.Name == "" {
		panic("cache: Options.Name must be set")
	}
	if len(opt.Keys) == 0 {
		panic("cache: Options.Keys must declare at least one key")
	}
	if opt.Fallback == nil {
		panic("cache: Options.Fallback must be set")
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Merge == nil {
		// Default merge policy: last write wins.
		opt.Merge = func(_, incoming V) V { return incoming }
	}

	log := opt.Logger
	if log == nil {
		log = slog.Default()
	}

	i := &Instance[K, V]{
		opt:    opt,
		keySet: make(map[K]struct{}, len(opt.Keys)),
		log:    log.With(slog.String("cache", opt.Name)),
	}
	for _, k := range opt.Keys {
		i.keySet[k] = struct{}{}
	}

	i.coord = refresh.New[K, V](context.Background(), opt.RefreshTimeout)
	i.st = store.New(store.Options[K, V]{
		Shards:        opt.Shards,
		SweepInterval: opt.SweepInterval,
		Clock:         opt.Clock,
		OnEvict:       i.onEvict,
	})
	return i
}

// Name returns the stable instance identifier.
func (i *Instance[K, V]) Name() string { return i.opt.Name }

// Keys returns a copy of the declared key set in declaration order.
func (i *Instance[K, V]) Keys() []K {
	out := make([]K, len(i.opt.Keys))
	copy(out, i.opt.Keys)
	return out
}

// Get returns the resident value for k, or the provisional default while
// none is resident. On a cold or expired key it schedules a background
// refresh and returns immediately: Get never blocks on computation and
// never returns an error.
func (i *Instance[K, V]) Get(k K) V {
	if i.closed.Load() || !i.declared(k) {
		return i.opt.Default
	}
	if v, ok := i.st.Get(k); ok {
		i.opt.Metrics.Hit()
		return v
	}
	i.opt.Metrics.Miss()
	i.scheduleRefresh(k, false)
	return i.opt.Default
}

// GetOrCompute returns the resident value for k, computing it first when
// absent. Unlike Get it blocks until the in-flight computation finishes
// (or ctx is done), coalescing concurrent callers onto one flight.
// On a failed or non-persisted computation the provisional default is
// returned along with the flight error, if any.
func (i *Instance[K, V]) GetOrCompute(ctx context.Context, k K) (V, error) {
	if !i.declared(k) {
		return i.opt.Default, ErrUndeclaredKey
	}
	if v, ok := i.st.Get(k); ok {
		i.opt.Metrics.Hit()
		return v, nil
	}
	i.opt.Metrics.Miss()
	i.scheduleRefresh(k, false)

	v, attached, err := i.coord.Wait(ctx, k)
	if err != nil {
		return i.opt.Default, err
	}
	if attached {
		// The flight's published value covers provisional results too.
		return v, nil
	}
	// The flight finished before we could attach; its result is in the store.
	if v, ok := i.st.Get(k); ok {
		return v, nil
	}
	return i.opt.Default, nil
}

// Set unconditionally overwrites k with v using the instance TTL.
func (i *Instance[K, V]) Set(k K, v V) {
	i.SetWithTTL(k, v, i.opt.TTL)
}

// SetWithTTL unconditionally overwrites k with v under a per-write TTL.
// A non-positive ttl disables expiration for this entry.
func (i *Instance[K, V]) SetWithTTL(k K, v V, ttl time.Duration) {
	if i.closed.Load() {
		return
	}
	if !i.declared(k) {
		i.log.Debug("set on undeclared key ignored", slog.Any("key", k))
		return
	}
	i.st.Put(k, v, ttl)
	i.opt.Metrics.Size(i.st.Len())
}

// Update merges v with the resident value through the instance merge
// policy, inside the store's per-key critical section, and returns the
// resolved value. When no value is resident, v is stored as-is.
func (i *Instance[K, V]) Update(k K, v V) V {
	if i.closed.Load() {
		return i.opt.Default
	}
	if !i.declared(k) {
		i.log.Debug("update on undeclared key ignored", slog.Any("key", k))
		return i.opt.Default
	}
	resolved := i.st.Update(k, func(old V, ok bool) V {
		if !ok {
			return v
		}
		return i.opt.Merge(old, v)
	}, i.opt.TTL)
	i.opt.Metrics.Size(i.st.Len())
	return resolved
}

// Delete removes k immediately. The eviction hook fires with the deleted
// reason; an explicit delete does not trigger a pre-warming refresh.
func (i *Instance[K, V]) Delete(k K) bool {
	if i.closed.Load() || !i.declared(k) {
		return false
	}
	return i.st.Delete(k)
}

// Refresh triggers a background recomputation for k. It returns true if
// this call started the flight and false when one is already running or
// the key is undeclared. Callers do not wait for the result.
func (i *Instance[K, V]) Refresh(k K) bool {
	if i.closed.Load() || !i.declared(k) {
		return false
	}
	return i.scheduleRefresh(k, true)
}

// InFlight reports whether a refresh is currently running for k.
func (i *Instance[K, V]) InFlight(k K) bool { return i.coord.InFlight(k) }

// Len returns the number of resident entries.
func (i *Instance[K, V]) Len() int { return i.st.Len() }

// Stats returns the store's hit/miss/eviction counters.
func (i *Instance[K, V]) Stats() store.Stats { return i.st.Stats() }

// Close stops the background sweep, cancels in-flight refreshes, and marks
// the instance closed. Safe to call multiple times.
func (i *Instance[K, V]) Close() error {
	if i.closed.Swap(true) {
		return nil
	}
	// Stop the sweep first so expiry hooks cannot schedule new flights.
	err := i.st.Close()
	i.coord.Close()
	return err
}

// ---- internals ----

func (i *Instance[K, V]) declared(k K) bool {
	_, ok := i.keySet[k]
	return ok
}

// scheduleRefresh claims the in-flight marker for k and starts the fallback
// on a background goroutine. Returns false when a flight already runs:
// re-entering COMPUTING is a no-op. Non-forced flights (miss-triggered)
// re-check the store before computing, so a refresh that already landed is
// not repeated; forced flights (expiry pre-warm, explicit Refresh) always
// recompute.
func (i *Instance[K, V]) scheduleRefresh(k K, force bool) bool {
	return i.coord.TryBegin(k, func(ctx context.Context) (V, error) {
		return i.runRefresh(ctx, k, force)
	})
}

// runRefresh executes one fallback computation and writes back the result.
// Failures are logged and counted, never surfaced to readers: by the time
// this runs, every caller already holds the provisional default.
func (i *Instance[K, V]) runRefresh(ctx context.Context, k K, force bool) (V, error) {
	if !force {
		// Double-check after claiming the flight: an earlier flight may
		// have landed between the caller's miss and this goroutine running.
		if v, ok := i.st.Get(k); ok {
			return v, nil
		}
	}

	start := time.Now()
	res, err := i.opt.Fallback(ctx, k)
	i.opt.Metrics.ObserveRefresh(time.Since(start))

	if err != nil {
		outcome := RefreshError
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = RefreshTimeout
		}
		i.opt.Metrics.Refresh(outcome)
		i.log.Error("refresh failed",
			slog.Any("key", k),
			slog.String("outcome", outcome.String()),
			slog.Any("err", err))
		return i.opt.Default, err
	}

	if res.Persist() {
		// Write-back goes through the merge policy so a concurrent Update
		// racing with this refresh reconciles deterministically.
		i.st.Update(k, func(old V, ok bool) V {
			if !ok {
				return res.Value()
			}
			return i.opt.Merge(old, res.Value())
		}, i.opt.TTL)
	}
	i.opt.Metrics.Refresh(RefreshOK)
	i.opt.Metrics.Size(i.st.Len())
	return res.Value(), nil
}

// onEvict is the store's deletion hook. TTL expiry pre-warms the key by
// kicking off a refresh instead of waiting for the next reader; explicit
// deletes stay deleted.
func (i *Instance[K, V]) onEvict(k K, _ V, r store.Reason) {
	i.opt.Metrics.Evict(r)
	i.opt.Metrics.Size(i.st.Len())
	if r == store.ReasonExpired && !i.closed.Load() {
		i.scheduleRefresh(k, true)
	}
}
