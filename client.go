package feedgate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/apexsports/feedgate/internal/config"
	"github.com/apexsports/feedgate/internal/dedup"
	"github.com/apexsports/feedgate/internal/keypool"
	"github.com/apexsports/feedgate/internal/metrics"
	"github.com/apexsports/feedgate/internal/observability"
	"github.com/apexsports/feedgate/internal/provider"
	"github.com/apexsports/feedgate/internal/ratelimit"
	feederrors "github.com/apexsports/feedgate/pkg/errors"
)

// maxProviderAttempts bounds retries against a single provider before the
// orchestrator moves to the next candidate.
const maxProviderAttempts = 4

// maxInPlaceBackoff bounds how long a retry waits in place. Backoffs longer
// than this (a 60s rate-limit wait, an hourly window) are better spent on
// the next provider in the ordering.
const maxInPlaceBackoff = 5 * time.Second

// Client is the orchestration façade. It owns the provider registry, the
// rate limiter, the credential pools, and the request deduplicator, and is
// safe for concurrent use.
type Client struct {
	registry  *provider.Registry
	limiter   *ratelimit.Limiter
	keys      *keypool.Manager
	dedup     *dedup.Deduplicator
	fetcher   *provider.Fetcher
	validator *keypool.Validator
	reporter  *feederrors.Reporter
	logger    *observability.Logger

	defaultTTL     time.Duration
	ttlOverrides   map[DataType]time.Duration
	healthErrLimit int
	healthWindow   time.Duration
}

// New builds a client from validated configuration. All per-provider state
// registries are owned by the returned value; nothing is process-global.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	redactor := observability.NewRedactor()
	var obsLogger *observability.Logger
	if o.logger != nil {
		obsLogger = observability.WrapLogger(o.logger, redactor)
	} else {
		obsLogger = observability.NewLogger(observability.LoggerConfig{
			Level:      slog.LevelInfo,
			Output:     os.Stdout,
			JSONFormat: true,
		}, redactor)
	}

	c := &Client{
		registry:       provider.NewRegistry(),
		limiter:        ratelimit.NewLimiter(obsLogger.Slog()),
		keys:           keypool.NewManager(keypool.Config{}, obsLogger.Slog()),
		reporter:       feederrors.NewReporter(o.reporterWindow),
		logger:         obsLogger,
		defaultTTL:     cfg.Cache.DefaultTTL,
		ttlOverrides:   o.ttlOverrides,
		healthErrLimit: o.healthErrLimit,
		healthWindow:   o.healthWindow,
	}

	c.dedup = dedup.New(dedup.Config{
		DefaultTTL:    cfg.Cache.DefaultTTL,
		SweepInterval: cfg.Cache.SweepInterval,
	}, obsLogger.Slog())

	c.fetcher = o.fetcher
	if c.fetcher == nil {
		c.fetcher = provider.NewFetcher(provider.FetcherConfig{
			GlobalRPS:   o.globalRPS,
			GlobalBurst: o.globalBurst,
		})
	}

	for i := range cfg.Providers {
		pc := cfg.Providers[i]
		c.registerProvider(pc)
		c.keys.SyncKeys(pc.Name, keyConfigs(pc))
	}

	if o.sharedStore != nil {
		c.limiter.SetSharedStore(o.sharedStore)
	} else if o.redisClient != nil {
		c.limiter.SetSharedStore(ratelimit.NewRedisWindowStore(o.redisClient))
	}

	if o.validateEvery > 0 {
		c.validator = keypool.NewValidator(c.keys, c.probeKey, o.validateEvery, obsLogger.Slog())
	}

	return c, nil
}

// registerProvider registers a provider's descriptor and rate limits.
// Re-registering an existing provider replaces the limits while its window
// and breaker state survive.
func (c *Client) registerProvider(pc config.ProviderConfig) {
	dataTypes := make([]DataType, 0, len(pc.DataTypes))
	for _, dt := range pc.DataTypes {
		dataTypes = append(dataTypes, DataType(dt))
	}

	c.registry.Add(&provider.Provider{
		Name:        pc.Name,
		BaseURL:     pc.BaseURL,
		KeyInHeader: pc.KeyInHeader,
		KeyParam:    pc.KeyParam,
		Timeout:     pc.Timeout,
		RetryDelay:  pc.RetryDelay,
		Sports:      pc.Sports,
		DataTypes:   dataTypes,
		Priority:    pc.Priority,
	})

	c.limiter.Register(pc.Name, ratelimit.Limits{
		RequestsPerMinute:       pc.RequestsPerMinute,
		RequestsPerHour:         pc.RequestsPerHour,
		RequestsPerDay:          pc.RequestsPerDay,
		Cooldown:                pc.Cooldown,
		CircuitBreakerThreshold: pc.CircuitBreakerThreshold,
		CircuitBreakerTimeout:   pc.CircuitBreakerTimeout,
	})
}

func keyConfigs(pc config.ProviderConfig) []keypool.KeyConfig {
	cfgs := make([]keypool.KeyConfig, 0, len(pc.APIKeys))
	for idx, key := range pc.APIKeys {
		cfgs = append(cfgs, keypool.KeyConfig{
			Key:                key,
			MaxRequestsPerHour: pc.KeyRequestsPerHour,
			MaxRequestsPerDay:  pc.KeyRequestsPerDay,
			Priority:           idx,
		})
	}
	return cfgs
}

// ApplyConfig applies a reloaded configuration to a running client.
// Provider descriptors and rate limits are re-registered, keeping window
// and breaker state, and credential pools are reconciled with the new key
// lists. Providers dropped from the configuration keep their registry
// entries; removing a live provider requires a restart.
func (c *Client) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	for i := range cfg.Providers {
		pc := cfg.Providers[i]
		c.registerProvider(pc)
		c.keys.SyncKeys(pc.Name, keyConfigs(pc))
	}
}

// Start launches the background maintenance loops: the rate-limit window
// sweep and, when enabled, credential revalidation. They stop when ctx is
// canceled.
func (c *Client) Start(ctx context.Context) {
	c.limiter.Start(ctx)
	if c.validator != nil {
		c.validator.Start(ctx)
	}
}

// Fetch retrieves a typed payload for the given data type and sport. It
// serves from cache when fresh, joins an in-flight identical request when
// one exists, and otherwise walks the provider ordering with retry,
// credential rotation, and fallback. When every provider is exhausted the
// final error is returned; callers that prefer empty results over hard
// failure should use FetchOrDefault.
func (c *Client) Fetch(ctx context.Context, dataType DataType, sport string) (*Payload, error) {
	if sport == "" {
		return nil, feederrors.NewValidationError("", "sport is required")
	}

	key := cacheKey(dataType, sport)
	res, err := c.dedup.Do(ctx, key, c.ttlFor(dataType), func(ctx context.Context) ([]byte, error) {
		return c.fetchFromProviders(ctx, dataType, sport, key)
	})
	if err != nil {
		return nil, err
	}

	metrics.CacheRequests.WithLabelValues(res.Source).Inc()

	payload, err := provider.DecodePayload("cache", dataType, res.Data)
	if err != nil {
		// A cached entry that no longer decodes is dropped rather than
		// served again.
		c.dedup.Invalidate(key)
		return nil, err
	}
	return payload, nil
}

// FetchOrDefault is Fetch with the exhaustion policy most dashboard pages
// want: when every provider and retry is exhausted it returns the empty
// payload for the data type instead of an error.
func (c *Client) FetchOrDefault(ctx context.Context, dataType DataType, sport string) *Payload {
	payload, err := c.Fetch(ctx, dataType, sport)
	if err != nil {
		c.logger.RedactedWarn("all providers exhausted, returning default payload",
			"data_type", string(dataType),
			"sport", sport,
			"error", err,
		)
		return provider.Empty(dataType)
	}
	return payload
}

// fetchFromProviders walks the ordered candidate list for (sport, dataType),
// skipping unhealthy providers, and returns the first successful validated
// response body.
func (c *Client) fetchFromProviders(ctx context.Context, dataType DataType, sport, requestKey string) ([]byte, error) {
	candidates := c.registry.Candidates(sport, dataType)
	if len(candidates) == 0 {
		return nil, feederrors.NewValidationError("", fmt.Sprintf("no provider serves %s/%s", sport, dataType))
	}

	var lastErr error
	for _, p := range candidates {
		if !c.isServiceHealthy(p.Name) {
			c.logger.Debug("skipping unhealthy provider",
				"provider", p.Name,
				"data_type", string(dataType),
			)
			continue
		}

		body, err := c.tryProvider(ctx, p, dataType, sport, requestKey)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		metrics.ProviderFallbacks.WithLabelValues(p.Name, string(dataType)).Inc()
		c.logger.RedactedWarn("falling back to next provider",
			"provider", p.Name,
			"data_type", string(dataType),
			"error", err,
		)
	}

	if lastErr == nil {
		lastErr = feederrors.NewServerError("", 503, fmt.Sprintf("no healthy provider for %s/%s", sport, dataType))
	}
	return nil, lastErr
}

// tryProvider runs the retry loop against a single provider, applying the
// recovery strategy for each classified failure.
func (c *Client) tryProvider(ctx context.Context, p *provider.Provider, dataType DataType, sport, requestKey string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < maxProviderAttempts; attempt++ {
		apiKey, ok := c.keys.CurrentKey(p.Name)
		if !ok {
			return nil, feederrors.NewAuthenticationError(p.Name, "no usable credential in pool")
		}

		start := time.Now()
		body, err := ratelimit.Execute(ctx, c.limiter, p.Name, requestKey, func(ctx context.Context) ([]byte, error) {
			raw, fetchErr := c.fetcher.Fetch(ctx, p, dataType, sport, apiKey)
			if fetchErr != nil {
				return nil, fetchErr
			}
			// Validate the payload while still inside the rate-limited
			// call so malformed bodies count as failures for the breaker.
			if _, decodeErr := provider.DecodePayload(p.Name, dataType, raw); decodeErr != nil {
				return nil, decodeErr
			}
			return raw, nil
		})

		metrics.ProviderLatency.WithLabelValues(p.Name, string(dataType)).Observe(time.Since(start).Seconds())

		if err == nil {
			metrics.ProviderRequests.WithLabelValues(p.Name, string(dataType), sport, "success").Inc()
			return body, nil
		}
		lastErr = err
		metrics.ProviderRequests.WithLabelValues(p.Name, string(dataType), sport, "failure").Inc()

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		category := feederrors.Classify(err)
		strategy := feederrors.StrategyFor(category, attempt)
		metrics.ErrorsByCategory.WithLabelValues(p.Name, string(category)).Inc()

		level := c.reporter.LevelFor(category, strategy.LogLevel)
		c.logger.RedactedLog(ctx, level, "provider request failed",
			"provider", p.Name,
			"data_type", string(dataType),
			"sport", sport,
			"category", string(category),
			"attempt", attempt,
			"error", err,
		)

		rotated := false
		if strategy.Fallback == feederrors.FallbackRotateKey {
			rotated = c.rotateCredential(p.Name, apiKey, category)
		}

		// Opening the breaker before a successful rotation would block the
		// retry with the fresh credential; only a dead pool trips it.
		if strategy.CircuitBreak && !rotated {
			c.limiter.ForceOpen(p.Name)
		}

		if strategy.Fallback == feederrors.FallbackCachedData {
			if stale, ok := c.dedup.Peek(requestKey); ok {
				c.logger.RedactedWarn("serving cached data after failure",
					"provider", p.Name,
					"category", string(category),
				)
				return stale, nil
			}
		}

		if rotated {
			// A fresh credential makes the strategy's backoff moot.
			continue
		}
		if !strategy.ShouldRetry {
			return nil, err
		}
		if strategy.RetryAfter > maxInPlaceBackoff {
			// Waiting out a long window in place starves the caller;
			// spend the time on the next provider instead.
			return nil, err
		}

		if strategy.RetryAfter > 0 {
			timer := time.NewTimer(strategy.RetryAfter)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return nil, lastErr
}

// rotateCredential marks the failing key and rotates the pool. Returns true
// when a usable credential is available afterwards (including the
// single-key reset case).
func (c *Client) rotateCredential(providerName, apiKey string, category feederrors.Category) bool {
	var reason keypool.Reason
	switch category {
	case feederrors.CategoryRateLimit:
		c.keys.MarkRateLimited(providerName, apiKey)
		reason = keypool.ReasonRateLimit
	case feederrors.CategoryAuthentication:
		c.keys.MarkInvalid(providerName, apiKey)
		reason = keypool.ReasonInvalid
	default:
		c.keys.MarkRateLimited(providerName, apiKey)
		reason = keypool.ReasonRateLimit
	}

	_, ok := c.keys.RotateToNext(providerName, reason)
	result := "failed"
	if ok {
		result = "rotated"
	}
	metrics.KeyRotations.WithLabelValues(providerName, string(reason), result).Inc()
	return ok
}

// isServiceHealthy reports whether a provider has fewer than the configured
// error budget inside the health window.
func (c *Client) isServiceHealthy(providerName string) bool {
	cutoff := time.Now().Add(-c.healthWindow)
	return c.limiter.ErrorsSince(providerName, cutoff) < c.healthErrLimit
}

// probeKey validates one credential against its provider with a minimal
// request; used by the background validator.
func (c *Client) probeKey(ctx context.Context, providerName, key string) error {
	p, ok := c.registry.Get(providerName)
	if !ok {
		return fmt.Errorf("provider %s not found", providerName)
	}
	return c.fetcher.Probe(ctx, p, key)
}

// CheckRateLimit exposes the rate-limit decision for a provider without
// consuming a slot.
func (c *Client) CheckRateLimit(providerName string) Decision {
	return c.limiter.Check(providerName)
}

// ProviderStats returns a snapshot of the provider's rate-limit state.
func (c *Client) ProviderStats(providerName string) (UsageStats, bool) {
	return c.limiter.UsageStats(providerName)
}

// KeyUsage returns masked snapshots of the provider's credential pool.
func (c *Client) KeyUsage(providerName string) []KeyStats {
	return c.keys.UsageStats(providerName)
}

// RotationHistory returns the most recent credential rotation events.
func (c *Client) RotationHistory(limit int) []RotationEvent {
	return c.keys.History(limit)
}

// CacheStatsSnapshot returns deduplicator effectiveness counters.
func (c *Client) CacheStatsSnapshot() CacheStats {
	return c.dedup.Stats()
}

// Providers returns all registered provider names, sorted.
func (c *Client) Providers() []string {
	return c.registry.Names()
}

func (c *Client) ttlFor(dataType DataType) time.Duration {
	if ttl, ok := c.ttlOverrides[dataType]; ok {
		return ttl
	}
	return c.defaultTTL
}

func cacheKey(dataType DataType, sport string) string {
	return string(dataType) + ":" + sport
}
