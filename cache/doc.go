// Package cache provides a key-bounded refreshing cache: a fixed,
// enumerable set of keys whose values are recomputed in the background by
// a user-supplied fallback, with per-instance TTL, single-flight refresh
// coalescing, pre-warming on expiry, lightweight metrics hooks, and an
// explicit registry for lifecycle management.
//
// # Design
//
//   - Reads never block on computation: Get is O(1) and returns either the
//     resident value or the instance's provisional default while a refresh
//     runs in the background. GetOrCompute is the blocking variant for
//     callers that prefer latency over a placeholder.
//
//   - Single-flight: concurrent requests for the same cold or expired key
//     start at most one fallback run. The in-flight marker is a dedicated
//     per-key record in the refresh coordinator, not a store entry, so its
//     lifetime is independent of any TTL.
//
//   - TTL & pre-warm: stored values expire on a per-instance TTL, lazily on
//     read and via an optional background sweep. When the sweep evicts an
//     entry, the deletion hook immediately schedules a refresh, converting
//     reader-triggered latency into background latency for hot keys.
//
//   - Bounded refresh: every fallback runs under a timeout. A hung fallback
//     has its marker force-cleared when the deadline fires, so a key cannot
//     be permanently locked out of refreshing.
//
//   - Failure isolation: a failing fallback is logged and counted; readers
//     keep receiving the provisional default until a later refresh
//     succeeds. No path out of this package raises to a reader.
//
//   - Merge policy: Update calls and refresh write-backs reconcile with the
//     resident value through the instance's Merge function (last-write-wins
//     by default) inside the store's per-key critical section.
//
// # Basic usage
//
//	sum := cache.New[string, int64](cache.Options[string, int64]{
//	    Name:          "address_sum",
//	    Keys:          []string{"sum"},
//	    Default:       0,
//	    TTL:           time.Hour,
//	    SweepInterval: time.Minute,
//	    Fallback: func(ctx context.Context, _ string) (cache.Result[int64], error) {
//	        v, err := sumBalances(ctx) // e.g. a DB aggregate
//	        if err != nil {
//	            return cache.Result[int64]{}, err
//	        }
//	        return cache.Resolved(v), nil
//	    },
//	})
//	defer sum.Close()
//
//	total := sum.Get("sum") // 0 until the first refresh completes
//
// # Lifecycle
//
//	reg := cache.NewRegistry()
//	_ = reg.Register(sum)
//	defer reg.Close() // closes every registered instance, reverse order
//
// # Observability
//
// Options.Metrics receives Hit/Miss/Evict/Refresh/Size signals; NoopMetrics
// is the default. The metrics/prom package exports them to Prometheus.
// Refresh failures are logged through Options.Logger (log/slog).
package cache
