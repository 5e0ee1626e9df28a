// Package refresh provides per-key single-flight coordination for
// background recomputation.
//
// Unlike a classic singleflight group, claiming a flight never blocks the
// caller: TryBegin claims the key's in-flight marker and runs the compute
// function on a detached goroutine, so readers proceed immediately with
// whatever provisional value their caching layer prescribes. Callers that
// do want the result attach to the flight with Wait.
//
// Every flight runs under a deadline. If the compute function ignores
// cancellation and hangs, the marker is force-cleared when the deadline
// fires, so the key is never permanently locked out of refreshing.
package refresh

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultFlightDeadline bounds a flight when no deadline is configured.
const DefaultFlightDeadline = time.Minute

// ErrFlightDeadline is the flight error observed by waiters when the
// compute function did not finish within the deadline.
var ErrFlightDeadline = errors.New("refresh: flight deadline exceeded")

// Coordinator ensures at most one in-flight computation per key.
//
// Concurrency notes:
//   - TryBegin's check-and-claim runs under the coordinator mutex, so two
//     racing callers cannot both start a flight for the same key.
//   - The flight result is published before the done channel is closed, so
//     reads after <-done observe the final values.
//   - Cancelling ctx in Wait unblocks only that waiter; the flight runs on.
type Coordinator[K comparable, V any] struct {
	mu      sync.Mutex
	flights map[K]*flight[V]

	ctx      context.Context
	cancel   context.CancelFunc
	deadline time.Duration
	wg       sync.WaitGroup
}

type flight[V any] struct {
	done chan struct{} // closed when val/err are published
	val  V
	err  error
}

// New constructs a Coordinator. Flights inherit cancellation from ctx
// (nil => context.Background()). A non-positive deadline selects
// DefaultFlightDeadline.
func New[K comparable, V any](ctx context.Context, deadline time.Duration) *Coordinator[K, V] {
	if ctx == nil {
		ctx = context.Background()
	}
	if deadline <= 0 {
		deadline = DefaultFlightDeadline
	}
	cctx, cancel := context.WithCancel(ctx)
	return &Coordinator[K, V]{
		flights:  make(map[K]*flight[V]),
		ctx:      cctx,
		cancel:   cancel,
		deadline: deadline,
	}
}

// TryBegin claims the in-flight marker for k and starts fn on its own
// goroutine. It returns true if this call started the flight and false if
// one was already running (or the coordinator is closed) — in which case fn
// is not invoked at all.
//
// fn receives a context that expires at the flight deadline; well-behaved
// functions return promptly on cancellation, but even a function that hangs
// only delays its own goroutine, never the marker.
func (c *Coordinator[K, V]) TryBegin(k K, fn func(ctx context.Context) (V, error)) bool {
	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		return false
	}
	if _, running := c.flights[k]; running {
		c.mu.Unlock()
		return false
	}
	f := &flight[V]{done: make(chan struct{})}
	c.flights[k] = f
	// Register with the WaitGroup before releasing the mutex: a Close racing
	// in right after the unlock must still wait for this flight.
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run(k, f, fn)
	return true
}

// Wait attaches to the current flight for k and returns its published
// result. attached is false when no flight was running, in which case the
// value is the zero V and err is nil.
func (c *Coordinator[K, V]) Wait(ctx context.Context, k K) (v V, attached bool, err error) {
	c.mu.Lock()
	f, ok := c.flights[k]
	c.mu.Unlock()
	if !ok {
		return v, false, nil
	}

	select {
	case <-f.done:
		return f.val, true, f.err
	case <-ctx.Done():
		return v, true, ctx.Err()
	}
}

// InFlight reports whether a computation is currently running for k.
func (c *Coordinator[K, V]) InFlight(k K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.flights[k]
	return ok
}

// Len returns the number of keys with a running flight.
func (c *Coordinator[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.flights)
}

// Close cancels all flights and waits for their goroutines to unwind.
// Runaway compute functions that ignore cancellation are abandoned: their
// markers are cleared and Close does not wait for them.
func (c *Coordinator[K, V]) Close() {
	c.cancel()
	// Barrier: let any TryBegin critical section in progress finish its
	// wg.Add. After this, new claims see the cancelled context and bail,
	// so wg.Wait covers every flight that ever registered.
	c.mu.Lock()
	c.mu.Unlock() //nolint:staticcheck // SA2001: empty critical section is the barrier
	c.wg.Wait()
}

type result[V any] struct {
	val V
	err error
}

// run executes one flight: fn under a deadline, marker cleared on exit.
func (c *Coordinator[K, V]) run(k K, f *flight[V], fn func(ctx context.Context) (V, error)) {
	defer c.wg.Done()

	ctx, cancel := context.WithTimeout(c.ctx, c.deadline)
	defer cancel()

	// Buffered so a late return from a runaway fn never leaks the goroutine.
	ch := make(chan result[V], 1)
	go func() {
		v, err := fn(ctx)
		ch <- result[V]{val: v, err: err}
	}()

	var res result[V]
	select {
	case res = <-ch:
	case <-ctx.Done():
		// Watchdog: fn ignored cancellation. Force-clear the marker so a
		// later request can retry; the runaway goroutine is on its own.
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			res.err = ErrFlightDeadline
		} else {
			res.err = ctx.Err()
		}
	}

	// Publish, wake waiters, then release the marker.
	f.val, f.err = res.val, res.err
	close(f.done)

	c.mu.Lock()
	delete(c.flights, k)
	c.mu.Unlock()
}
