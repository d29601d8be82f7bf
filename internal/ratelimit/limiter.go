// Package ratelimit enforces per-provider sliding-window quotas, a minimum
// inter-request cooldown, and a circuit breaker for outbound sports-data
// calls. State is owned by an explicit Limiter value rather than package
// globals so tests and callers can run isolated instances.
package ratelimit

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/apexsports/feedgate/internal/metrics"
)

const (
	// pruneInterval is how often the sliding-window log sweep runs.
	pruneInterval = 5 * time.Minute
	// eventRetention bounds the sliding-window log; hourly counting needs
	// one hour of history, anything older is dropped.
	eventRetention = time.Hour
)

// Limits holds the immutable quota configuration for one provider.
type Limits struct {
	RequestsPerMinute int
	RequestsPerHour   int
	RequestsPerDay    int

	Cooldown time.Duration

	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration
}

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed bool
	// WaitTime is how long the caller should wait before the next attempt.
	WaitTime time.Duration
	// Reason is a human-readable explanation when the request is denied.
	Reason string
	// RetryAfter is the time until the boundary of the violated window.
	RetryAfter time.Duration
}

// requestEvent is one entry in a provider's sliding-window log.
type requestEvent struct {
	at      time.Time
	success bool
}

// providerState tracks the mutable rate-limit state for one provider.
// The containing Limiter synchronizes access.
type providerState struct {
	events              []requestEvent
	lastRequestTime     time.Time
	consecutiveFailures int
	circuitOpenUntil    time.Time

	// Daily usage is tracked per UTC calendar day.
	dayKey   string
	dayCount int
}

// Stats is a read-only snapshot of a provider's rate-limit state.
type Stats struct {
	Provider            string    `json:"provider"`
	RequestsLastMinute  int       `json:"requests_last_minute"`
	RequestsLastHour    int       `json:"requests_last_hour"`
	RequestsToday       int       `json:"requests_today"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	CircuitOpen         bool      `json:"circuit_open"`
	CircuitOpenUntil    time.Time `json:"circuit_open_until,omitempty"`
	LastRequestTime     time.Time `json:"last_request_time,omitempty"`
	Limits              Limits    `json:"-"`
}

// Limiter enforces rate limits across a registry of providers.
type Limiter struct {
	mu     sync.Mutex
	states map[string]*providerState
	limits map[string]Limits

	logger *slog.Logger
	now    func() time.Time

	// shared, when set, is consulted for the minute window in addition to
	// local state so replicas can share one provider quota.
	shared WindowStore
}

// SetSharedStore attaches a shared window store. Passing nil detaches it.
func (l *Limiter) SetSharedStore(store WindowStore) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shared = store
}

// NewLimiter creates an empty limiter. Providers must be registered before
// their limits are enforced.
func NewLimiter(logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		states: make(map[string]*providerState),
		limits: make(map[string]Limits),
		logger: logger,
		now:    time.Now,
	}
}

// Register adds a provider with its quota configuration. Re-registering a
// provider replaces its limits but keeps accumulated state.
func (l *Limiter) Register(provider string, limits Limits) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.limits[provider] = limits
	if _, ok := l.states[provider]; !ok {
		l.states[provider] = &providerState{}
	}
}

// Check evaluates whether a request to the provider is allowed right now.
// Constraints are evaluated from widest to narrowest window: circuit breaker,
// daily, hourly, per-minute, then cooldown. Check never mutates state; the
// caller records the outcome with RecordSuccess or RecordFailure.
func (l *Limiter) Check(provider string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, limits, ok := l.stateFor(provider)
	if !ok {
		return Decision{Allowed: false, Reason: fmt.Sprintf("Unknown provider %q", provider)}
	}

	now := l.now()

	if state.circuitOpenUntil.After(now) {
		wait := state.circuitOpenUntil.Sub(now)
		metrics.RateLimitDenials.WithLabelValues(provider, "circuit").Inc()
		return Decision{
			Allowed:    false,
			WaitTime:   wait,
			Reason:     "Circuit breaker open",
			RetryAfter: wait,
		}
	}

	if limits.RequestsPerDay > 0 {
		if count := l.dayCountLocked(state, now); count >= limits.RequestsPerDay {
			wait := untilNextUTCDay(now)
			metrics.RateLimitDenials.WithLabelValues(provider, "day").Inc()
			return Decision{
				Allowed:    false,
				WaitTime:   wait,
				Reason:     fmt.Sprintf("Daily limit exceeded (%d)", limits.RequestsPerDay),
				RetryAfter: wait,
			}
		}
	}

	if limits.RequestsPerHour > 0 {
		if count := countSince(state.events, now.Add(-time.Hour)); count >= limits.RequestsPerHour {
			wait := untilNextHour(now)
			metrics.RateLimitDenials.WithLabelValues(provider, "hour").Inc()
			return Decision{
				Allowed:    false,
				WaitTime:   wait,
				Reason:     fmt.Sprintf("Hourly limit exceeded (%d)", limits.RequestsPerHour),
				RetryAfter: wait,
			}
		}
	}

	if limits.RequestsPerMinute > 0 {
		if count := countSince(state.events, now.Add(-time.Minute)); count >= limits.RequestsPerMinute {
			wait := untilNextMinute(now)
			metrics.RateLimitDenials.WithLabelValues(provider, "minute").Inc()
			return Decision{
				Allowed:    false,
				WaitTime:   wait,
				Reason:     fmt.Sprintf("Minute limit exceeded (%d)", limits.RequestsPerMinute),
				RetryAfter: wait,
			}
		}
	}

	if limits.Cooldown > 0 && !state.lastRequestTime.IsZero() {
		elapsed := now.Sub(state.lastRequestTime)
		if elapsed < limits.Cooldown {
			wait := limits.Cooldown - elapsed
			metrics.RateLimitDenials.WithLabelValues(provider, "cooldown").Inc()
			return Decision{
				Allowed:    false,
				WaitTime:   wait,
				Reason:     "Cooldown period active",
				RetryAfter: wait,
			}
		}
	}

	return Decision{Allowed: true}
}

// RecordSuccess records a successful request. It resets the failure streak
// and closes the circuit breaker; the first allowed call after the breaker
// timeout acts as the half-open trial, so a success here completes the
// Open -> Closed transition.
func (l *Limiter) RecordSuccess(provider string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, _, ok := l.stateFor(provider)
	if !ok {
		return
	}

	now := l.now()
	l.appendEventLocked(state, now, true)

	if state.consecutiveFailures > 0 || !state.circuitOpenUntil.IsZero() {
		if !state.circuitOpenUntil.IsZero() {
			l.logger.Info("circuit breaker closed", "provider", provider)
			metrics.CircuitTransitions.WithLabelValues(provider, "closed").Inc()
		}
		state.consecutiveFailures = 0
		state.circuitOpenUntil = time.Time{}
	}
}

// RecordFailure records a failed request. Reaching the configured threshold
// of consecutive failures opens the circuit breaker for the provider's
// breaker timeout.
func (l *Limiter) RecordFailure(provider string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, limits, ok := l.stateFor(provider)
	if !ok {
		return
	}

	now := l.now()
	l.appendEventLocked(state, now, false)

	state.consecutiveFailures++
	if limits.CircuitBreakerThreshold > 0 && state.consecutiveFailures >= limits.CircuitBreakerThreshold {
		state.circuitOpenUntil = now.Add(limits.CircuitBreakerTimeout)
		metrics.CircuitTransitions.WithLabelValues(provider, "open").Inc()
		l.logger.Warn("circuit breaker opened",
			"provider", provider,
			"consecutive_failures", state.consecutiveFailures,
			"open_until", state.circuitOpenUntil,
			"error", errString(err),
		)
	}
}

// ForceOpen opens the provider's circuit breaker immediately, regardless of
// the failure streak. Used when a non-retryable failure (for example an
// authentication error on every pool credential) makes further attempts
// pointless.
func (l *Limiter) ForceOpen(provider string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, limits, ok := l.stateFor(provider)
	if !ok {
		return
	}

	state.circuitOpenUntil = l.now().Add(limits.CircuitBreakerTimeout)
	metrics.CircuitTransitions.WithLabelValues(provider, "open").Inc()
	l.logger.Warn("circuit breaker forced open", "provider", provider, "open_until", state.circuitOpenUntil)
}

// ErrorsSince reports how many failed requests the provider has recorded
// since the given cutoff. The orchestrator uses this for its health gate.
func (l *Limiter) ErrorsSince(provider string, cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, _, ok := l.stateFor(provider)
	if !ok {
		return 0
	}

	count := 0
	for _, ev := range state.events {
		if !ev.success && !ev.at.Before(cutoff) {
			count++
		}
	}
	return count
}

// UsageStats returns a snapshot of the provider's rate-limit state.
func (l *Limiter) UsageStats(provider string) (Stats, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, limits, ok := l.stateFor(provider)
	if !ok {
		return Stats{}, false
	}

	now := l.now()
	stats := Stats{
		Provider:            provider,
		RequestsLastMinute:  countSince(state.events, now.Add(-time.Minute)),
		RequestsLastHour:    countSince(state.events, now.Add(-time.Hour)),
		RequestsToday:       l.dayCountLocked(state, now),
		ConsecutiveFailures: state.consecutiveFailures,
		CircuitOpen:         state.circuitOpenUntil.After(now),
		CircuitOpenUntil:    state.circuitOpenUntil,
		LastRequestTime:     state.lastRequestTime,
		Limits:              limits,
	}
	return stats, true
}

// Providers returns the names of all registered providers.
func (l *Limiter) Providers() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	names := make([]string, 0, len(l.limits))
	for name := range l.limits {
		names = append(names, name)
	}
	return names
}

// Prune drops sliding-window entries older than the retention horizon.
func (l *Limiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-eventRetention)
	for _, state := range l.states {
		state.events = dropBefore(state.events, cutoff)
	}
}

func (l *Limiter) stateFor(provider string) (*providerState, Limits, bool) {
	limits, ok := l.limits[provider]
	if !ok {
		return nil, Limits{}, false
	}
	state := l.states[provider]
	return state, limits, true
}

func (l *Limiter) appendEventLocked(state *providerState, now time.Time, success bool) {
	state.events = append(state.events, requestEvent{at: now, success: success})
	state.lastRequestTime = now

	key := utcDayKey(now)
	if state.dayKey != key {
		state.dayKey = key
		state.dayCount = 0
	}
	state.dayCount++
}

func (l *Limiter) dayCountLocked(state *providerState, now time.Time) int {
	if state.dayKey != utcDayKey(now) {
		return 0
	}
	return state.dayCount
}

func countSince(events []requestEvent, cutoff time.Time) int {
	// Events are appended in order; walk backwards and stop at the first
	// entry outside the window.
	count := 0
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].at.Before(cutoff) {
			break
		}
		count++
	}
	return count
}

func dropBefore(events []requestEvent, cutoff time.Time) []requestEvent {
	idx := 0
	for idx < len(events) && events[idx].at.Before(cutoff) {
		idx++
	}
	if idx == 0 {
		return events
	}
	remaining := make([]requestEvent, len(events)-idx)
	copy(remaining, events[idx:])
	return remaining
}

func utcDayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func untilNextUTCDay(now time.Time) time.Duration {
	utc := now.UTC()
	next := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	return next.Sub(utc)
}

func untilNextHour(now time.Time) time.Duration {
	return now.Truncate(time.Hour).Add(time.Hour).Sub(now)
}

func untilNextMinute(now time.Time) time.Duration {
	return now.Truncate(time.Minute).Add(time.Minute).Sub(now)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
