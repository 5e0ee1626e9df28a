// Command bench runs a synthetic workload against a cache instance and
// exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IvanBrykalov/refreshcache/cache"
	pmet "github.com/IvanBrykalov/refreshcache/metrics/prom"
)

func main() {
	// ---- Flags ----
	var (
		keys     = flag.Int("keys", 1024, "declared keyspace size")
		shards   = flag.Int("shards", 0, "number of store shards (0=auto)")
		ttl      = flag.Duration("ttl", 500*time.Millisecond, "entry TTL (0=infinite)")
		sweep    = flag.Duration("sweep", 100*time.Millisecond, "sweep interval (0=disabled)")
		loadLat  = flag.Duration("load_latency", 2*time.Millisecond, "simulated fallback latency")
		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		readPct  = flag.Int("reads", 80, "read percentage [0..100]")

		zipfS = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed  = flag.Int64("seed", time.Now().UnixNano(), "random seed")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "refreshcache", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics: serving at %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	// ---- Build the instance ----
	keyset := make([]string, *keys)
	for n := range keyset {
		keyset[n] = "k:" + strconv.Itoa(n)
	}

	var loads uint64
	latency := *loadLat
	i := cache.New[string, int](cache.Options[string, int]{
		Name:          "bench",
		Keys:          keyset,
		Shards:        *shards,
		TTL:           *ttl,
		SweepInterval: *sweep,
		Metrics:       metrics,
		Fallback: func(ctx context.Context, k string) (cache.Result[int], error) {
			atomic.AddUint64(&loads, 1)
			if latency > 0 {
				select {
				case <-time.After(latency):
				case <-ctx.Done():
					return cache.Result[int]{}, ctx.Err()
				}
			}
			return cache.Resolved(len(k)), nil
		},
	})
	defer func() { _ = i.Close() }()

	// ---- Snapshot flags for goroutines ----
	readPctVal := *readPct
	keysMax := uint64(*keys - 1)
	seedBase := *seed
	zipfSVal := *zipfS
	zipfVVal := *zipfV
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}

	// ---- Load generation ----
	var reads, writes, total uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int) {
			defer wg.Done()

			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			localZipf := rand.NewZipf(localR, zipfSVal, zipfVVal, keysMax)

			keyByZipf := func() string {
				return keyset[localZipf.Uint64()]
			}

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				atomic.AddUint64(&total, 1)
				if int(localR.Int31n(100)) < readPctVal {
					atomic.AddUint64(&reads, 1)
					i.Get(keyByZipf())
				} else {
					atomic.AddUint64(&writes, 1)
					i.Update(keyByZipf(), localR.Intn(1000))
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	ops := atomic.LoadUint64(&total)
	readsN := atomic.LoadUint64(&reads)
	writesN := atomic.LoadUint64(&writes)
	loadsN := atomic.LoadUint64(&loads)
	st := i.Stats()

	hitRate := 0.0
	if st.Hits+st.Misses > 0 {
		hitRate = float64(st.Hits) / float64(st.Hits+st.Misses) * 100
	}

	fmt.Printf("keys=%d shards=%d ttl=%v sweep=%v workers=%d dur=%v seed=%d\n",
		*keys, *shards, *ttl, *sweep, workersN, elapsed, seedBase)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d  fallback-runs=%d\n",
		ops, float64(ops)/elapsed.Seconds(), readsN, writesN, loadsN)
	fmt.Printf("hits=%d  misses=%d  evictions=%d  hit-rate=%.2f%%\n",
		st.Hits, st.Misses, st.Evictions, hitRate)
	fmt.Printf("Len()=%d\n", i.Len())
}
