// Command finauth-loadtest measures session store latency against Redis or
// an in-process miniredis.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rfol/finauth/session"
)

func main() {
	var (
		sessions    = flag.Int("sessions", 50000, "number of sessions to seed")
		users       = flag.Int("users", 5000, "distinct usernames the sessions are spread over")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "resolve operations")
		logouts     = flag.Int("logouts", 200, "logout-all operations")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "session", "session key prefix")
	)
	flag.Parse()

	if *sessions <= 0 || *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, users, concurrency and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var cleanup func()
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		cleanup = mr.Close
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		cleanup = func() {}
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	store := session.NewStore(client, *prefix, time.Hour, 500)

	fmt.Printf("seeding %d sessions over %d users...\n", *sessions, *users)
	seedStart := time.Now()
	ids := make([]string, *sessions)
	for i := range ids {
		sid, err := store.Create(ctx, usernameFor(i%*users))
		if err != nil {
			fmt.Fprintf(os.Stderr, "create failed: %v\n", err)
			os.Exit(1)
		}
		ids[i] = sid
	}
	fmt.Printf("seeded in %s\n", time.Since(seedStart).Round(time.Millisecond))

	resolve := runPhase(*ops, *concurrency, func(r *rand.Rand, _ int) error {
		_, err := store.Resolve(ctx, ids[r.Intn(len(ids))])
		return err
	})

	var removed int64
	logoutAll := runPhase(*logouts, *concurrency, func(_ *rand.Rand, i int) error {
		n, err := store.InvalidateAllForUser(ctx, usernameFor(i%*users))
		atomic.AddInt64(&removed, int64(n))
		return err
	})

	fmt.Println("---- results ----")
	printStats("resolve", resolve)
	printStats("logout_all", logoutAll)
	fmt.Printf("logout_all removed %d sessions\n", removed)
}

func usernameFor(i int) string {
	return fmt.Sprintf("user%05d", i)
}

// runPhase spreads ops calls of fn over workers and records each latency.
func runPhase(ops, concurrency int, fn func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, ops)
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
				t0 := time.Now()
				err := fn(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}
