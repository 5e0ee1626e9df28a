package store

import (
	"sync/atomic"
	"testing"
	"time"
)

// A single TTL expiry produces exactly one notification, whether the
// sweep or a later read gets there first.
func TestSweep_NotifiesOnce(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	var expired int64
	s := New[string, int](Options[string, int]{
		Clock: clk,
		OnEvict: func(_ string, _ int, r Reason) {
			if r == ReasonExpired {
				atomic.AddInt64(&expired, 1)
			}
		},
	})
	t.Cleanup(func() { _ = s.Close() })

	s.Put("k", 1, time.Second)
	clk.add(2 * time.Second)

	s.sweep()
	s.sweep() // entry already gone; must not re-notify
	s.Get("k")

	if n := atomic.LoadInt64(&expired); n != 1 {
		t.Fatalf("hook fired %d times, want 1", n)
	}
	if s.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", s.Len())
	}
}

// The sweep leaves unexpired and TTL-free entries alone.
func TestSweep_KeepsLiveEntries(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	s := New[string, int](Options[string, int]{Clock: clk})
	t.Cleanup(func() { _ = s.Close() })

	s.Put("short", 1, time.Second)
	s.Put("long", 2, time.Hour)
	s.Put("forever", 3, 0)

	clk.add(2 * time.Second)
	s.sweep()

	if _, ok := s.Get("short"); ok {
		t.Fatal("short must be swept")
	}
	if _, ok := s.Get("long"); !ok {
		t.Fatal("long must survive")
	}
	if _, ok := s.Get("forever"); !ok {
		t.Fatal("forever must survive")
	}
}

// The background sweep goroutine evicts on its own, without any reader.
// Uses real time with generous margins.
func TestSweep_Background(t *testing.T) {
	t.Parallel()

	evicted := make(chan string, 1)
	s := New[string, int](Options[string, int]{
		SweepInterval: 10 * time.Millisecond,
		OnEvict: func(k string, _ int, r Reason) {
			if r == ReasonExpired {
				select {
				case evicted <- k:
				default:
				}
			}
		},
	})
	t.Cleanup(func() { _ = s.Close() })

	s.Put("k", 1, 20*time.Millisecond)

	select {
	case k := <-evicted:
		if k != "k" {
			t.Fatalf("evicted %q, want k", k)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sweep never evicted the entry")
	}
}

// A hook may call back into the store: eviction hooks run outside the
// shard lock precisely so re-population cannot deadlock.
func TestSweep_HookRepopulates(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	var s *Store[string, int]
	s = New[string, int](Options[string, int]{
		Clock: clk,
		OnEvict: func(k string, v int, r Reason) {
			if r == ReasonExpired {
				s.Put(k, v+1, 0)
			}
		},
	})
	t.Cleanup(func() { _ = s.Close() })

	s.Put("k", 1, time.Second)
	clk.add(2 * time.Second)
	s.sweep()

	if v, ok := s.Get("k"); !ok || v != 2 {
		t.Fatalf("want repopulated 2, got %v ok=%v", v, ok)
	}
}
