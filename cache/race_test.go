package cache

import (
	"context"
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"
)

// A mixed workload of concurrent Get/Set/Update/Refresh/Delete over the
// declared key set, with a short TTL and an active sweep so expiry,
// pre-warm, and reader paths all overlap.
// Should pass under `-race` without detector reports.
func TestRace_Mixed(t *testing.T) {
	keys := make([]string, 32)
	for n := range keys {
		keys[n] = "k:" + strconv.Itoa(n)
	}

	i := New[string, int](Options[string, int]{
		Name:          "race",
		Keys:          keys,
		TTL:           15 * time.Millisecond,
		SweepInterval: 5 * time.Millisecond,
		Merge: func(old, incoming int) int {
			if old > incoming {
				return old
			}
			return incoming
		},
		Fallback: func(ctx context.Context, _ string) (Result[int], error) {
			select {
			case <-time.After(time.Millisecond):
			case <-ctx.Done():
				return Result[int]{}, ctx.Err()
			}
			return Resolved(1), nil
		},
	})
	t.Cleanup(func() { _ = i.Close() })

	workers := 4 * runtime.GOMAXPROCS(0)
	deadline := time.Now().Add(2 * time.Second)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)*9973))
			for time.Now().Before(deadline) {
				k := keys[r.Intn(len(keys))]
				switch r.Intn(100) {
				case 0, 1, 2, 3, 4: // ~5% — Delete
					i.Delete(k)
				case 5, 6, 7, 8, 9: // ~5% — Refresh
					i.Refresh(k)
				case 10, 11, 12, 13, 14: // ~5% — Update
					i.Update(k, r.Intn(100))
				case 15, 16, 17, 18, 19: // ~5% — Set
					i.Set(k, r.Intn(100))
				default: // ~80% — Get
					i.Get(k)
				}
			}
		}(w)
	}
	wg.Wait()
}
