package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/printdesk"
	"github.com/MrEthical07/printdesk/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// backend rotates the valid access token on every refresh, so each round
// begins with every in-flight request holding a stale token.
type backend struct {
	current   atomic.Value
	generated atomic.Int64
	exchanges atomic.Int64
	delay     time.Duration
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/token/refresh/" {
		b.exchanges.Add(1)
		time.Sleep(b.delay)
		next := fmt.Sprintf("T%d", b.generated.Add(1))
		b.current.Store(next)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"access": next})
		return
	}
	if r.Header.Get("Authorization") != "Bearer "+b.current.Load().(string) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// expire invalidates the current token without issuing a new one.
func (b *backend) expire() {
	b.current.Store("revoked")
}

func main() {
	var (
		rounds      = flag.Int("rounds", 50, "number of expiry rounds")
		concurrency = flag.Int("concurrency", 64, "concurrent requests per round")
		delay       = flag.Duration("refresh-delay", 20*time.Millisecond, "simulated refresh endpoint latency")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "pdload", "credential key prefix")
		rps         = flag.Float64("rps", 0, "request rate cap across workers; 0 is unlimited")
	)
	flag.Parse()

	if *rounds <= 0 || *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "rounds and concurrency must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		rdb     redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = rdb.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = rdb.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	be := &backend{delay: *delay}
	be.current.Store("T0")
	srv := httptest.NewServer(be)
	defer srv.Close()

	cfg := printdesk.DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.Events.Enabled = false
	cfg.Metrics.EnableLatencyHistograms = true

	client, err := printdesk.New().
		WithConfig(cfg).
		WithStore(store.NewRedisStore(rdb, *prefix, 0)).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	if err := client.SetTokens(ctx, printdesk.Tokens{Access: "T0", Refresh: "R0"}); err != nil {
		fmt.Fprintf(os.Stderr, "seed tokens: %v\n", err)
		os.Exit(1)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if *rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(*rps), *concurrency)
	}

	stats, failures, err := run(ctx, client, be, limiter, *rounds, *concurrency)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("---- results ----")
	printStats(stats, failures)
	exchanges := be.exchanges.Load()
	fmt.Printf("exchanges=%d rounds=%d (want one exchange per round)\n", exchanges, *rounds)

	snap := client.MetricsSnapshot()
	fmt.Printf("unauthorized=%d joined=%d stale_replays=%d replays=%d\n",
		snap.Counters[printdesk.MetricUnauthorized],
		snap.Counters[printdesk.MetricRefreshJoined],
		snap.Counters[printdesk.MetricStaleReplays],
		snap.Counters[printdesk.MetricReplays],
	)
	if exchanges != int64(*rounds) {
		os.Exit(1)
	}
}

func run(ctx context.Context, client *printdesk.Client, be *backend, limiter *rate.Limiter, rounds, concurrency int) (phaseStats, int64, error) {
	var (
		failures  int64
		latencies = make([]time.Duration, 0, rounds*concurrency)
		mu        sync.Mutex
	)

	start := time.Now()
	for round := 0; round < rounds; round++ {
		be.expire()

		var g errgroup.Group
		for w := 0; w < concurrency; w++ {
			g.Go(func() error {
				// Only a cancelled ctx fails the limiter; that aborts the run.
				if err := limiter.Wait(ctx); err != nil {
					return err
				}
				t0 := time.Now()
				_, err := client.Do(ctx, printdesk.NewRequest(http.MethodGet, "/api/orders/", nil))
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return phaseStats{}, failures, err
		}
	}
	return computeStats(time.Since(start), latencies), failures, nil
}

type phaseStats struct {
	total   time.Duration
	ops     int
	p50     time.Duration
	p95     time.Duration
	p99     time.Duration
	opsPerS float64
}

func computeStats(total time.Duration, samples []time.Duration) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:   total,
		ops:     len(samples),
		p50:     percentile(samples, 50),
		p95:     percentile(samples, 95),
		p99:     percentile(samples, 99),
		opsPerS: float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(s phaseStats, failures int64) {
	fmt.Printf("requests=%d failures=%d total=%s req/sec=%.0f p50=%s p95=%s p99=%s\n",
		s.ops,
		failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
