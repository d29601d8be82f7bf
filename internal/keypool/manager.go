// Package keypool manages per-provider API credential pools: usage
// accounting, rotation away from exhausted or invalid keys, and periodic
// revalidation.
package keypool

import (
	"log/slog"
	"sync"
	"time"

	"github.com/apexsports/feedgate/internal/observability"
)

// Status is the lifecycle state of a credential.
type Status string

const (
	StatusActive      Status = "active"
	StatusRateLimited Status = "rate_limited"
	StatusInvalid     Status = "invalid"
	StatusSuspended   Status = "suspended"
)

// RotationThreshold is the fraction of a key's quota at which it is treated
// as effectively rate-limited and rotated away from. The exact value is a
// heuristic carried over from operating these provider quotas; keep it
// configurable rather than inlined.
const RotationThreshold = 0.90

// KeyConfig describes one credential added to a pool.
type KeyConfig struct {
	Key                string
	MaxRequestsPerHour int
	MaxRequestsPerDay  int
	Priority           int
}

// keyState tracks a credential's mutable usage state. The Manager
// synchronizes access.
type keyState struct {
	KeyConfig

	status        Status
	hourlyUsage   int
	dailyUsage    int
	lastHourReset time.Time
	lastDayReset  time.Time
	lastValidated time.Time
}

// KeyStats is a read-only snapshot of one credential for introspection.
// The key itself is masked.
type KeyStats struct {
	Key           string    `json:"key"`
	Status        Status    `json:"status"`
	HourlyUsage   int       `json:"hourly_usage"`
	DailyUsage    int       `json:"daily_usage"`
	MaxPerHour    int       `json:"max_per_hour"`
	MaxPerDay     int       `json:"max_per_day"`
	Priority      int       `json:"priority"`
	LastValidated time.Time `json:"last_validated,omitempty"`
}

type pool struct {
	keys    []*keyState
	current int
}

// Config controls Manager behavior.
type Config struct {
	// RotationThreshold overrides the default 90% usage threshold.
	// Zero keeps the default.
	RotationThreshold float64
	// HistorySize bounds the rotation event log. Zero keeps the default
	// of 100 entries.
	HistorySize int
}

// Manager owns the credential pools for all providers.
type Manager struct {
	mu        sync.Mutex
	pools     map[string]*pool
	history   *rotationHistory
	threshold float64

	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates an empty credential pool manager.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	threshold := cfg.RotationThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = RotationThreshold
	}
	return &Manager{
		pools:     make(map[string]*pool),
		history:   newRotationHistory(cfg.HistorySize),
		threshold: threshold,
		logger:    logger,
		now:       time.Now,
	}
}

// AddKey adds a credential to the provider's pool. Duplicate key values for
// the same provider are ignored.
func (m *Manager) AddKey(provider string, cfg KeyConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.pools[provider]
	if p == nil {
		p = &pool{}
		m.pools[provider] = p
	}
	for _, k := range p.keys {
		if k.Key == cfg.Key {
			return
		}
	}

	now := m.now()
	p.keys = append(p.keys, &keyState{
		KeyConfig:     cfg,
		status:        StatusActive,
		lastHourReset: now,
		lastDayReset:  now,
	})
}

// SyncKeys reconciles the provider's pool with a reloaded configuration:
// new credentials are added, credentials no longer configured are removed,
// and surviving credentials keep their usage and status. The current
// position is preserved when its credential survives.
func (m *Manager) SyncKeys(provider string, cfgs []KeyConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.pools[provider]
	if p == nil {
		p = &pool{}
		m.pools[provider] = p
	}

	configured := make(map[string]bool, len(cfgs))
	for _, cfg := range cfgs {
		configured[cfg.Key] = true
	}

	var current string
	if len(p.keys) > 0 {
		current = p.keys[p.current].Key
	}

	kept := make([]*keyState, 0, len(cfgs))
	seen := make(map[string]bool, len(cfgs))
	for _, k := range p.keys {
		if configured[k.Key] {
			kept = append(kept, k)
			seen[k.Key] = true
		}
	}

	now := m.now()
	for _, cfg := range cfgs {
		if seen[cfg.Key] {
			continue
		}
		seen[cfg.Key] = true
		kept = append(kept, &keyState{
			KeyConfig:     cfg,
			status:        StatusActive,
			lastHourReset: now,
			lastDayReset:  now,
		})
	}

	p.keys = kept
	p.current = 0
	for i, k := range kept {
		if k.Key == current {
			p.current = i
			break
		}
	}
}

// RemoveKey removes a credential from the provider's pool.
func (m *Manager) RemoveKey(provider, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.pools[provider]
	if p == nil {
		return false
	}
	for i, k := range p.keys {
		if k.Key == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			if p.current >= len(p.keys) {
				p.current = 0
			}
			return true
		}
	}
	return false
}

// ResetKeyUsage zeroes a credential's usage counters and restores it to
// active status.
func (m *Manager) ResetKeyUsage(provider, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := m.findKeyLocked(provider, key)
	if k == nil {
		return false
	}
	m.resetUsageLocked(k)
	return true
}

// CurrentKey returns the provider's current credential and accounts one use
// against it. A non-active current credential triggers rotation first, and a
// use that would cross the rotation threshold rotates before the charge so
// the usage lands on the credential that actually serves the request. The
// second return value is false when the pool has no usable credential.
func (m *Manager) CurrentKey(provider string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.pools[provider]
	if p == nil || len(p.keys) == 0 {
		return "", false
	}

	k := p.keys[p.current]
	if k.status != StatusActive {
		if rotated, ok := m.rotateLocked(provider, ReasonInvalid); ok {
			k = rotated
		} else {
			return "", false
		}
	}

	m.rollUsageWindowsLocked(k)

	if m.nextUseCrossesThresholdLocked(k) {
		k.status = StatusRateLimited
		m.logger.Warn("credential usage over rotation threshold",
			"provider", provider,
			"key", observability.MaskKey(k.Key),
			"hourly_usage", k.hourlyUsage,
			"daily_usage", k.dailyUsage,
		)
		// Rotation only helps when there is somewhere to rotate to.
		if len(p.keys) > 1 {
			rotated, ok := m.rotateLocked(provider, ReasonRateLimit)
			if !ok {
				return "", false
			}
			k = rotated
		}
	}

	k.hourlyUsage++
	k.dailyUsage++
	return k.Key, true
}

// RotateToNext rotates the provider's pool to the next usable credential and
// returns it. Single-credential pools are never rotated: on a rate_limit
// reason the lone key's usage is reset and its status restored instead,
// trading strict quota compliance for continued availability.
func (m *Manager) RotateToNext(provider string, reason Reason) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k, ok := m.rotateLocked(provider, reason)
	if !ok {
		return "", false
	}
	return k.Key, true
}

// MarkRateLimited flags a specific credential as rate-limited, typically in
// response to a provider 429.
func (m *Manager) MarkRateLimited(provider, key string) {
	m.setStatus(provider, key, StatusRateLimited)
}

// MarkInvalid flags a specific credential as invalid, typically in response
// to a provider 401.
func (m *Manager) MarkInvalid(provider, key string) {
	m.setStatus(provider, key, StatusInvalid)
}

// UsageStats returns masked snapshots of the provider's credentials.
func (m *Manager) UsageStats(provider string) []KeyStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.pools[provider]
	if p == nil {
		return nil
	}

	stats := make([]KeyStats, 0, len(p.keys))
	for _, k := range p.keys {
		stats = append(stats, KeyStats{
			Key:           observability.MaskKey(k.Key),
			Status:        k.status,
			HourlyUsage:   k.hourlyUsage,
			DailyUsage:    k.dailyUsage,
			MaxPerHour:    k.MaxRequestsPerHour,
			MaxPerDay:     k.MaxRequestsPerDay,
			Priority:      k.Priority,
			LastValidated: k.lastValidated,
		})
	}
	return stats
}

// History returns the most recent rotation events, newest last.
func (m *Manager) History(limit int) []RotationEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history.tail(limit)
}

// rotateLocked walks the pool circularly from the current index and commits
// the first usable credential found. Every attempt, successful or not, is
// appended to the rotation history.
func (m *Manager) rotateLocked(provider string, reason Reason) (*keyState, bool) {
	p := m.pools[provider]
	if p == nil || len(p.keys) == 0 {
		return nil, false
	}

	from := p.keys[p.current]

	if len(p.keys) == 1 {
		if reason == ReasonRateLimit {
			m.resetUsageLocked(from)
			m.recordRotationLocked(provider, from.Key, from.Key, reason, true)
			m.logger.Warn("single-credential pool reset instead of rotation",
				"provider", provider,
				"key", observability.MaskKey(from.Key),
			)
			return from, true
		}
		m.recordRotationLocked(provider, from.Key, "", reason, false)
		return nil, false
	}

	for step := 1; step <= len(p.keys); step++ {
		idx := (p.current + step) % len(p.keys)
		candidate := p.keys[idx]
		if candidate.status != StatusActive {
			continue
		}
		m.rollUsageWindowsLocked(candidate)
		if m.atLimitLocked(candidate) {
			continue
		}

		p.current = idx
		m.recordRotationLocked(provider, from.Key, candidate.Key, reason, true)
		m.logger.Info("rotated credential",
			"provider", provider,
			"from", observability.MaskKey(from.Key),
			"to", observability.MaskKey(candidate.Key),
			"reason", string(reason),
		)
		return candidate, true
	}

	m.recordRotationLocked(provider, from.Key, "", reason, false)
	m.logger.Error("credential pool exhausted", "provider", provider, "reason", string(reason))
	return nil, false
}

func (m *Manager) setStatus(provider, key string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if k := m.findKeyLocked(provider, key); k != nil {
		k.status = status
	}
}

func (m *Manager) findKeyLocked(provider, key string) *keyState {
	p := m.pools[provider]
	if p == nil {
		return nil
	}
	for _, k := range p.keys {
		if k.Key == key {
			return k
		}
	}
	return nil
}

func (m *Manager) resetUsageLocked(k *keyState) {
	now := m.now()
	k.hourlyUsage = 0
	k.dailyUsage = 0
	k.lastHourReset = now
	k.lastDayReset = now
	k.status = StatusActive
}

// rollUsageWindowsLocked resets usage counters whose window has elapsed.
func (m *Manager) rollUsageWindowsLocked(k *keyState) {
	now := m.now()
	if now.Sub(k.lastHourReset) >= time.Hour {
		k.hourlyUsage = 0
		k.lastHourReset = now
	}
	if now.Sub(k.lastDayReset) >= 24*time.Hour {
		k.dailyUsage = 0
		k.lastDayReset = now
	}
}

func (m *Manager) nextUseCrossesThresholdLocked(k *keyState) bool {
	if k.MaxRequestsPerHour > 0 && float64(k.hourlyUsage+1) >= m.threshold*float64(k.MaxRequestsPerHour) {
		return true
	}
	if k.MaxRequestsPerDay > 0 && float64(k.dailyUsage+1) >= m.threshold*float64(k.MaxRequestsPerDay) {
		return true
	}
	return false
}

func (m *Manager) atLimitLocked(k *keyState) bool {
	if k.MaxRequestsPerHour > 0 && k.hourlyUsage >= k.MaxRequestsPerHour {
		return true
	}
	if k.MaxRequestsPerDay > 0 && k.dailyUsage >= k.MaxRequestsPerDay {
		return true
	}
	return false
}
