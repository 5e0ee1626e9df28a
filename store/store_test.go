package store

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

type fakeClock struct{ t atomic.Int64 }

func (f *fakeClock) NowUnixNano() int64  { return f.t.Load() }
func (f *fakeClock) add(d time.Duration) { f.t.Add(int64(d)) }

// Uses a fake clock to avoid timing flakiness.
// Ensures that per-entry TTL is respected.
func TestStore_TTL_FakeClock(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	s := New[string, string](Options[string, string]{Clock: clk})
	t.Cleanup(func() { _ = s.Close() })

	s.Put("x", "v", 100*time.Millisecond)
	if _, ok := s.Get("x"); !ok {
		t.Fatal("fresh miss")
	}
	clk.add(200 * time.Millisecond)
	if _, ok := s.Get("x"); ok {
		t.Fatal("expired hit")
	}
}

// A non-positive TTL disables expiration for the entry.
func TestStore_NoTTL_NeverExpires(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	s := New[string, int](Options[string, int]{Clock: clk})
	t.Cleanup(func() { _ = s.Close() })

	s.Put("k", 1, 0)
	clk.add(1000 * time.Hour)
	if v, ok := s.Get("k"); !ok || v != 1 {
		t.Fatalf("want 1, got %v ok=%v", v, ok)
	}
}

// Lazy expiry on read must fire the eviction hook exactly once
// with the expired reason.
func TestStore_LazyExpiry_NotifiesOnce(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	var expired int64
	s := New[string, int](Options[string, int]{
		Clock: clk,
		OnEvict: func(k string, v int, r Reason) {
			if r != ReasonExpired {
				t.Errorf("reason = %v, want expired", r)
			}
			if k != "k" || v != 7 {
				t.Errorf("got (%q, %d)", k, v)
			}
			atomic.AddInt64(&expired, 1)
		},
	})
	t.Cleanup(func() { _ = s.Close() })

	s.Put("k", 7, time.Second)
	clk.add(2 * time.Second)

	s.Get("k")
	s.Get("k")
	if n := atomic.LoadInt64(&expired); n != 1 {
		t.Fatalf("hook fired %d times, want 1", n)
	}
}

// Delete fires the hook with the deleted reason and reports presence.
func TestStore_Delete(t *testing.T) {
	t.Parallel()

	var deletes int64
	s := New[string, string](Options[string, string]{
		OnEvict: func(_ string, _ string, r Reason) {
			if r != ReasonDeleted {
				t.Errorf("reason = %v, want deleted", r)
			}
			atomic.AddInt64(&deletes, 1)
		},
	})
	t.Cleanup(func() { _ = s.Close() })

	s.Put("a", "1", 0)
	if !s.Delete("a") {
		t.Fatal("Delete existing must be true")
	}
	if s.Delete("a") {
		t.Fatal("Delete absent must be false")
	}
	if _, ok := s.Get("a"); ok {
		t.Fatal("a must be absent after Delete")
	}
	if n := atomic.LoadInt64(&deletes); n != 1 {
		t.Fatalf("hook fired %d times, want 1", n)
	}
}

// Concurrent Update calls with a max-wins merge must settle on the
// maximum regardless of arrival order.
func TestStore_Update_MaxWins(t *testing.T) {
	t.Parallel()

	s := New[string, int](Options[string, int]{})
	t.Cleanup(func() { _ = s.Close() })

	maxMerge := func(n int) func(old int, ok bool) int {
		return func(old int, ok bool) int {
			if ok && old > n {
				return old
			}
			return n
		}
	}

	var g errgroup.Group
	g.Go(func() error { s.Update("k", maxMerge(3), 0); return nil })
	g.Go(func() error { s.Update("k", maxMerge(5), 0); return nil })
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if v, ok := s.Get("k"); !ok || v != 5 {
		t.Fatalf("want 5, got %v ok=%v", v, ok)
	}
}

// Update is a single critical section per key: concurrent increments
// must never lose a write.
func TestStore_Update_Linearized(t *testing.T) {
	t.Parallel()

	s := New[string, int](Options[string, int]{})
	t.Cleanup(func() { _ = s.Close() })

	const workers = 8
	const perWorker = 1000

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for n := 0; n < perWorker; n++ {
				s.Update("ctr", func(old int, ok bool) int {
					if !ok {
						return 1
					}
					return old + 1
				}, 0)
			}
		}()
	}
	wg.Wait()

	if v, _ := s.Get("ctr"); v != workers*perWorker {
		t.Fatalf("lost updates: got %d, want %d", v, workers*perWorker)
	}
}

// An expired resident value must be presented to the merge function
// as absent.
func TestStore_Update_ExpiredIsAbsent(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	s := New[string, int](Options[string, int]{Clock: clk})
	t.Cleanup(func() { _ = s.Close() })

	s.Put("k", 10, time.Second)
	clk.add(2 * time.Second)

	v := s.Update("k", func(old int, ok bool) int {
		if ok {
			t.Errorf("expired value presented as resident (old=%d)", old)
		}
		return 1
	}, 0)
	if v != 1 {
		t.Fatalf("resolved = %d, want 1", v)
	}
}

// Stats counters reflect hits, misses and evictions.
func TestStore_Stats(t *testing.T) {
	t.Parallel()

	s := New[string, int](Options[string, int]{})
	t.Cleanup(func() { _ = s.Close() })

	s.Put("a", 1, 0)
	s.Get("a") // hit
	s.Get("b") // miss

	st := s.Stats()
	if st.Hits != 1 || st.Misses != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

// Operations after Close are ignored.
func TestStore_Closed(t *testing.T) {
	t.Parallel()

	s := New[string, int](Options[string, int]{})
	s.Put("a", 1, 0)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal("second Close must be nil")
	}

	if _, ok := s.Get("a"); ok {
		t.Fatal("Get after Close must miss")
	}
	s.Put("b", 2, 0)
	if s.Delete("b") {
		t.Fatal("Delete after Close must be false")
	}
}
