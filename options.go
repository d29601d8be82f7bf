package feedgate

import (
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/apexsports/feedgate/internal/provider"
	"github.com/apexsports/feedgate/internal/ratelimit"
)

// Option customizes Client construction.
type Option func(*clientOptions)

type clientOptions struct {
	logger         *slog.Logger
	fetcher        *provider.Fetcher
	redisClient    *redis.Client
	sharedStore    ratelimit.WindowStore
	globalRPS      float64
	globalBurst    int
	reporterWindow time.Duration
	validateEvery  time.Duration
	ttlOverrides   map[DataType]time.Duration
	healthErrLimit int
	healthWindow   time.Duration
}

func defaultOptions() *clientOptions {
	return &clientOptions{
		reporterWindow: 5 * time.Minute,
		ttlOverrides:   make(map[DataType]time.Duration),
		healthErrLimit: 5,
		healthWindow:   5 * time.Minute,
	}
}

// WithLogger sets the slog logger the client and its services log through.
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = logger }
}

// WithFetcher replaces the HTTP fetcher, mainly for tests.
func WithFetcher(f *provider.Fetcher) Option {
	return func(o *clientOptions) { o.fetcher = f }
}

// WithRedis attaches a Redis client; the minute window is then shared
// across replicas through it.
func WithRedis(client *redis.Client) Option {
	return func(o *clientOptions) { o.redisClient = client }
}

// WithSharedWindowStore attaches a custom shared window store. Overrides
// WithRedis.
func WithSharedWindowStore(store ratelimit.WindowStore) Option {
	return func(o *clientOptions) { o.sharedStore = store }
}

// WithGlobalRPS caps aggregate outbound requests per second across all
// providers.
func WithGlobalRPS(rps float64, burst int) Option {
	return func(o *clientOptions) {
		o.globalRPS = rps
		o.globalBurst = burst
	}
}

// WithReporterWindow sets the log-dampening window for repeated failures of
// the same category.
func WithReporterWindow(window time.Duration) Option {
	return func(o *clientOptions) { o.reporterWindow = window }
}

// WithKeyValidation enables background credential revalidation on the given
// interval.
func WithKeyValidation(interval time.Duration) Option {
	return func(o *clientOptions) { o.validateEvery = interval }
}

// WithTTL overrides the cache TTL for one data type.
func WithTTL(dataType DataType, ttl time.Duration) Option {
	return func(o *clientOptions) { o.ttlOverrides[dataType] = ttl }
}

// WithHealthGate tunes the provider health gate: a provider with errLimit
// or more recorded errors inside window is skipped during candidate
// selection.
func WithHealthGate(errLimit int, window time.Duration) Option {
	return func(o *clientOptions) {
		o.healthErrLimit = errLimit
		o.healthWindow = window
	}
}
