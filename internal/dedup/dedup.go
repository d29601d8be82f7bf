// Package dedup collapses concurrent identical requests into one in-flight
// operation and serves repeats from a TTL cache.
package dedup

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Result sources.
const (
	// SourceNetwork means the fetch function ran for this caller.
	SourceNetwork = "network"
	// SourceCache means a fresh cache entry was served.
	SourceCache = "cache"
	// SourceQueue means the caller joined an already in-flight request.
	SourceQueue = "queue"
)

const (
	defaultTTL   = 5 * time.Minute
	defaultSweep = 5 * time.Minute
	defaultStale = time.Hour
)

// Result carries the outcome of a deduplicated request.
type Result struct {
	Data      []byte    `json:"data"`
	Cached    bool      `json:"cached"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// Stats is a snapshot of cache effectiveness counters.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	QueueHits int64   `json:"queue_hits"`
	Sets      int64   `json:"sets"`
	Entries   int     `json:"entries"`
	Pending   int     `json:"pending"`
	HitRate   float64 `json:"hit_rate"`
}

// cachedPayload is what lands in the backing TTL cache.
type cachedPayload struct {
	data      []byte
	timestamp time.Time
}

// call is one in-flight request shared by every caller with the same key.
type call struct {
	done chan struct{}
	data []byte
	err  error
	at   time.Time
}

// Deduplicator guarantees at most one in-flight request per key and caches
// successful results. The TTL cache is backed by go-cache, whose janitor
// sweeps expired entries on the configured interval. A longer-lived stale
// copy of every result backs Peek, so recovery fallbacks have something to
// serve after the fresh entry expires.
type Deduplicator struct {
	mu      sync.Mutex
	pending map[string]*call

	cache      *gocache.Cache
	stale      *gocache.Cache
	defaultTTL time.Duration
	staleTTL   time.Duration
	logger     *slog.Logger

	hits      atomic.Int64
	misses    atomic.Int64
	queueHits atomic.Int64
	sets      atomic.Int64
}

// Config controls cache behavior.
type Config struct {
	DefaultTTL    time.Duration
	SweepInterval time.Duration
	// StaleTTL bounds how long an expired result remains servable through
	// Peek. Zero keeps the default of one hour.
	StaleTTL time.Duration
}

// New creates a deduplicator with its backing TTL caches.
func New(cfg Config, logger *slog.Logger) *Deduplicator {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = defaultTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweep
	}
	if cfg.StaleTTL <= 0 {
		cfg.StaleTTL = defaultStale
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Deduplicator{
		pending:    make(map[string]*call),
		cache:      gocache.New(cfg.DefaultTTL, cfg.SweepInterval),
		stale:      gocache.New(cfg.StaleTTL, cfg.SweepInterval),
		defaultTTL: cfg.DefaultTTL,
		staleTTL:   cfg.StaleTTL,
		logger:     logger,
	}
}

// Do returns a fresh cache entry if one exists for key, joins an in-flight
// request for the same key if one is outstanding, and otherwise runs fetch.
// The pending registration is removed regardless of outcome, so a failed
// fetch never wedges the key. Successful results are cached for ttl
// (non-positive ttl uses the default).
func (d *Deduplicator) Do(ctx context.Context, key string, ttl time.Duration, fetch func(context.Context) ([]byte, error)) (Result, error) {
	if ttl <= 0 {
		ttl = d.defaultTTL
	}

	if v, found := d.cache.Get(key); found {
		entry := v.(cachedPayload)
		d.hits.Add(1)
		return Result{
			Data:      entry.data,
			Cached:    true,
			Timestamp: entry.timestamp,
			Source:    SourceCache,
		}, nil
	}
	d.misses.Add(1)

	d.mu.Lock()
	if inflight, ok := d.pending[key]; ok {
		d.mu.Unlock()
		d.queueHits.Add(1)
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-inflight.done:
		}
		if inflight.err != nil {
			return Result{}, inflight.err
		}
		return Result{
			Data:      inflight.data,
			Timestamp: inflight.at,
			Source:    SourceQueue,
		}, nil
	}

	c := &call{done: make(chan struct{})}
	d.pending[key] = c
	d.mu.Unlock()

	c.data, c.err = fetch(ctx)
	c.at = time.Now()

	// Cleanup must happen before waiters are released so a caller arriving
	// after close(done) starts a fresh request instead of joining a dead one.
	d.mu.Lock()
	delete(d.pending, key)
	d.mu.Unlock()

	if c.err == nil {
		entry := cachedPayload{data: c.data, timestamp: c.at}
		d.cache.Set(key, entry, ttl)
		d.stale.Set(key, entry, d.staleTTL)
		d.sets.Add(1)
	}
	close(c.done)

	if c.err != nil {
		return Result{}, c.err
	}
	return Result{
		Data:      c.data,
		Timestamp: c.at,
		Source:    SourceNetwork,
	}, nil
}

// Peek returns a cached payload without recording a hit or a miss, falling
// back to the longer-lived stale copy once the fresh entry has expired. The
// orchestrator uses it to serve stale-tolerant fallbacks.
func (d *Deduplicator) Peek(key string) ([]byte, bool) {
	if v, found := d.cache.Get(key); found {
		return v.(cachedPayload).data, true
	}
	if v, found := d.stale.Get(key); found {
		return v.(cachedPayload).data, true
	}
	return nil, false
}

// Invalidate drops a cache entry, including its stale copy.
func (d *Deduplicator) Invalidate(key string) {
	d.cache.Delete(key)
	d.stale.Delete(key)
}

// Flush removes all cache entries.
func (d *Deduplicator) Flush() {
	d.cache.Flush()
	d.stale.Flush()
}

// Stats returns cache statistics.
func (d *Deduplicator) Stats() Stats {
	hits := d.hits.Load()
	misses := d.misses.Load()
	total := hits + misses

	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	d.mu.Lock()
	pending := len(d.pending)
	d.mu.Unlock()

	return Stats{
		Hits:      hits,
		Misses:    misses,
		QueueHits: d.queueHits.Load(),
		Sets:      d.sets.Load(),
		Entries:   d.cache.ItemCount(),
		Pending:   pending,
		HitRate:   hitRate,
	}
}
