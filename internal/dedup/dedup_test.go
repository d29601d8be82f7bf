package dedup

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDeduplicator_FetchThenCache(t *testing.T) {
	d := New(Config{}, nil)
	ctx := context.Background()

	calls := 0
	fetch := func(ctx context.Context) ([]byte, error) {
		calls++
		return []byte(`{"odds":[]}`), nil
	}

	res, err := d.Do(ctx, "odds:nba", time.Minute, fetch)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if res.Source != SourceNetwork || res.Cached {
		t.Errorf("first call: Source = %s, Cached = %v, want a network fetch", res.Source, res.Cached)
	}

	res, err = d.Do(ctx, "odds:nba", time.Minute, fetch)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if res.Source != SourceCache || !res.Cached {
		t.Errorf("second call: Source = %s, Cached = %v, want a cache hit", res.Source, res.Cached)
	}
	if string(res.Data) != `{"odds":[]}` {
		t.Errorf("Data = %s", res.Data)
	}
	if calls != 1 {
		t.Errorf("fetch ran %d times, want 1", calls)
	}
}

func TestDeduplicator_ConcurrentCallsShareOneFetch(t *testing.T) {
	d := New(Config{}, nil)
	ctx := context.Background()

	var fetches atomic.Int64
	release := make(chan struct{})
	fetch := func(ctx context.Context) ([]byte, error) {
		fetches.Add(1)
		<-release
		return []byte("payload"), nil
	}

	const callers = 20
	var wg sync.WaitGroup
	var queueHits atomic.Int64
	results := make([]Result, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = d.Do(ctx, "scores:nba", time.Minute, fetch)
			if results[i].Source == SourceQueue {
				queueHits.Add(1)
			}
		}(i)
	}

	// Give the goroutines time to pile up on the pending call.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := fetches.Load(); got != 1 {
		t.Errorf("fetch ran %d times, want 1", got)
	}
	for i := range errs {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if string(results[i].Data) != "payload" {
			t.Errorf("caller %d: Data = %s", i, results[i].Data)
		}
	}
	if queueHits.Load() == 0 {
		t.Error("expected at least one caller to join the in-flight request")
	}
}

func TestDeduplicator_FailedFetchDoesNotWedgeKey(t *testing.T) {
	d := New(Config{}, nil)
	ctx := context.Background()

	boom := errors.New("boom")
	_, err := d.Do(ctx, "k", time.Minute, func(ctx context.Context) ([]byte, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Do() error = %v, want boom", err)
	}

	res, err := d.Do(ctx, "k", time.Minute, func(ctx context.Context) ([]byte, error) {
		return []byte("recovered"), nil
	})
	if err != nil {
		t.Fatalf("Do() after failure error = %v", err)
	}
	if res.Source != SourceNetwork {
		t.Errorf("Source = %s, failures must not be cached", res.Source)
	}

	if stats := d.Stats(); stats.Pending != 0 {
		t.Errorf("Pending = %d, want 0", stats.Pending)
	}
}

func TestDeduplicator_TTLExpiry(t *testing.T) {
	d := New(Config{DefaultTTL: 30 * time.Millisecond, SweepInterval: time.Hour}, nil)
	ctx := context.Background()

	calls := 0
	fetch := func(ctx context.Context) ([]byte, error) {
		calls++
		return []byte("v"), nil
	}

	d.Do(ctx, "k", 0, fetch)
	time.Sleep(50 * time.Millisecond)

	res, err := d.Do(ctx, "k", 0, fetch)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if res.Source != SourceNetwork {
		t.Errorf("Source = %s, want a refetch after expiry", res.Source)
	}
	if calls != 2 {
		t.Errorf("fetch ran %d times, want 2", calls)
	}
}

func TestDeduplicator_Invalidate(t *testing.T) {
	d := New(Config{}, nil)
	ctx := context.Background()

	d.Do(ctx, "k", time.Minute, func(ctx context.Context) ([]byte, error) {
		return []byte("stale"), nil
	})
	d.Invalidate("k")

	res, _ := d.Do(ctx, "k", time.Minute, func(ctx context.Context) ([]byte, error) {
		return []byte("fresh"), nil
	})
	if string(res.Data) != "fresh" {
		t.Errorf("Data = %s after invalidation", res.Data)
	}
}

func TestDeduplicator_Peek(t *testing.T) {
	d := New(Config{}, nil)
	ctx := context.Background()

	if _, ok := d.Peek("k"); ok {
		t.Fatal("Peek on empty cache should miss")
	}

	d.Do(ctx, "k", time.Minute, func(ctx context.Context) ([]byte, error) {
		return []byte("v"), nil
	})

	before := d.Stats()
	data, ok := d.Peek("k")
	if !ok || string(data) != "v" {
		t.Fatalf("Peek = %q, %v", data, ok)
	}
	after := d.Stats()
	if before.Hits != after.Hits || before.Misses != after.Misses {
		t.Error("Peek must not move the hit counters")
	}
}

func TestDeduplicator_PeekServesStaleAfterExpiry(t *testing.T) {
	d := New(Config{DefaultTTL: 30 * time.Millisecond, SweepInterval: time.Hour, StaleTTL: time.Hour}, nil)
	ctx := context.Background()

	d.Do(ctx, "k", 0, func(ctx context.Context) ([]byte, error) {
		return []byte("v"), nil
	})
	time.Sleep(50 * time.Millisecond)

	// The fresh entry is gone, but the stale copy still backs Peek.
	data, ok := d.Peek("k")
	if !ok || string(data) != "v" {
		t.Fatalf("Peek = %q, %v, want stale copy after expiry", data, ok)
	}

	d.Invalidate("k")
	if _, ok := d.Peek("k"); ok {
		t.Error("Invalidate must drop the stale copy too")
	}
}

func TestDeduplicator_Stats(t *testing.T) {
	d := New(Config{}, nil)
	ctx := context.Background()

	fetch := func(ctx context.Context) ([]byte, error) { return []byte("v"), nil }
	d.Do(ctx, "a", time.Minute, fetch)
	d.Do(ctx, "a", time.Minute, fetch)
	d.Do(ctx, "a", time.Minute, fetch)
	d.Do(ctx, "b", time.Minute, fetch)

	stats := d.Stats()
	if stats.Hits != 2 || stats.Misses != 2 {
		t.Errorf("Hits/Misses = %d/%d, want 2/2", stats.Hits, stats.Misses)
	}
	if stats.Sets != 2 {
		t.Errorf("Sets = %d, want 2", stats.Sets)
	}
	if stats.Entries != 2 {
		t.Errorf("Entries = %d, want 2", stats.Entries)
	}
	if stats.HitRate != 0.5 {
		t.Errorf("HitRate = %v, want 0.5", stats.HitRate)
	}
}

func TestDeduplicator_Flush(t *testing.T) {
	d := New(Config{}, nil)
	ctx := context.Background()

	fetch := func(ctx context.Context) ([]byte, error) { return []byte("v"), nil }
	d.Do(ctx, "a", time.Minute, fetch)
	d.Do(ctx, "b", time.Minute, fetch)
	d.Flush()

	if stats := d.Stats(); stats.Entries != 0 {
		t.Errorf("Entries = %d after flush, want 0", stats.Entries)
	}
}

func TestDeduplicator_ContextCancelWhileQueued(t *testing.T) {
	d := New(Config{}, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	go d.Do(context.Background(), "k", time.Minute, func(ctx context.Context) ([]byte, error) {
		close(started)
		<-release
		return []byte("v"), nil
	})
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Do(ctx, "k", time.Minute, func(ctx context.Context) ([]byte, error) {
		return nil, nil
	})
	close(release)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
}
