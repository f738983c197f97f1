package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authsession"
	"github.com/MrEthical07/authsession/credstore"
	"github.com/MrEthical07/authsession/identity"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		devices     = flag.Int("devices", 1000, "number of session managers (one per simulated device)")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase (sign-in + read)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "as-load", "credential key prefix")
		latency     = flag.Duration("identity-latency", 2*time.Millisecond, "simulated identity service latency")
	)
	flag.Parse()

	if *devices <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "devices, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	service := httptest.NewServer(identityHandler(*latency))
	defer service.Close()

	idClient, err := identity.NewClient(identity.Config{BaseURL: service.URL})
	if err != nil {
		fmt.Fprintf(os.Stderr, "identity client: %v\n", err)
		os.Exit(1)
	}

	sealer, err := credstore.NewSealer(make([]byte, 32))
	if err != nil {
		fmt.Fprintf(os.Stderr, "sealer: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	managers := make([]*authsession.Manager, *devices)
	fmt.Printf("restoring %d devices...\n", *devices)
	startRestore := time.Now()
	for i := range managers {
		backend := credstore.NewRedisBackend(client, fmt.Sprintf("%s:%d", *prefix, i))
		store, err := credstore.NewStore(backend, sealer, credstore.Options{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "store: %v\n", err)
			os.Exit(1)
		}
		cfg := authsession.DefaultConfig()
		cfg.Metrics.Enabled = true
		m, err := authsession.New().
			WithConfig(cfg).
			WithCredentialStore(store).
			WithIdentityClient(idClient).
			WithLogger(logger).
			Build()
		if err != nil {
			fmt.Fprintf(os.Stderr, "build manager: %v\n", err)
			os.Exit(1)
		}
		if err := m.Restore(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "restore failed: %v\n", err)
			os.Exit(1)
		}
		managers[i] = m
	}
	defer func() {
		for _, m := range managers {
			m.Close()
		}
	}()
	fmt.Printf("restored in %s\n", time.Since(startRestore).Round(time.Millisecond))

	signInStats := runSignInPhase(ctx, managers, *ops, *concurrency)
	readStats := runReadPhase(ctx, managers, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("sign-in", signInStats)
	printStats("read", readStats)
}

// runSignInPhase alternates Login and Logout on random devices. Workers that
// hit the same device queue behind its in-flight operation.
func runSignInPhase(ctx context.Context, managers []*authsession.Manager, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.Intn(len(managers))
				m := managers[idx]
				t0 := time.Now()
				if m.Status() == authsession.StatusAuthenticated {
					m.Logout(ctx)
				} else {
					res, err := m.Login(ctx, fmt.Sprintf("user%d@example.com", idx), "secret-password")
					if err != nil || !res.Persisted() {
						atomic.AddInt64(&failures, 1)
					}
				}
				d := time.Since(t0)
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

// runReadPhase measures snapshot reads while a background worker keeps
// mutating random devices. A read that breaks the token/user pairing counts as
// a failure.
func runReadPhase(ctx context.Context, managers []*authsession.Manager, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	churnCtx, stopChurn := context.WithCancel(ctx)
	churnDone := make(chan struct{})
	go func() {
		defer close(churnDone)
		r := rand.New(rand.NewSource(time.Now().UnixNano()))
		for churnCtx.Err() == nil {
			idx := r.Intn(len(managers))
			if managers[idx].Status() == authsession.StatusAuthenticated {
				managers[idx].Logout(ctx)
				continue
			}
			_, _ = managers[idx].Login(ctx, fmt.Sprintf("user%d@example.com", idx), "secret-password")
		}
	}()

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.Intn(len(managers))
				t0 := time.Now()
				s := managers[idx].Session()
				d := time.Since(t0)
				if (s.Token != "") != (len(s.User) > 0) {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	stopChurn()
	<-churnDone
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
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
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

// identityHandler is a minimal PocketBase-shaped identity service that accepts
// every password.
func identityHandler(latency time.Duration) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/collections/users/auth-with-password", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Identity string `json:"identity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"message":"bad request"}`, http.StatusBadRequest)
			return
		}
		time.Sleep(latency)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token": uuid.NewString(),
			"record": map[string]any{
				"id":    req.Identity,
				"email": req.Identity,
			},
		})
	})
	return mux
}
