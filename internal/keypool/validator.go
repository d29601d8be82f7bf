package keypool

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/apexsports/feedgate/internal/observability"
)

const (
	defaultRevalidateInterval = 10 * time.Minute
	// staleAfter is the age at which a credential's last validation no
	// longer counts and a fresh probe is due.
	staleAfter = time.Hour
)

// ProbeFunc performs a lightweight provider-specific request that succeeds
// only when the credential is accepted.
type ProbeFunc func(ctx context.Context, provider, key string) error

// Validator periodically revalidates credentials whose last successful
// validation is older than an hour.
type Validator struct {
	manager  *Manager
	probe    ProbeFunc
	interval time.Duration
	logger   *slog.Logger
	started  atomic.Bool
}

// NewValidator creates a background credential validator.
func NewValidator(manager *Manager, probe ProbeFunc, interval time.Duration, logger *slog.Logger) *Validator {
	if interval <= 0 {
		interval = defaultRevalidateInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		manager:  manager,
		probe:    probe,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the revalidation loop until the context is canceled.
func (v *Validator) Start(ctx context.Context) {
	if v == nil || v.probe == nil {
		return
	}
	if !v.started.CompareAndSwap(false, true) {
		return
	}
	go v.run(ctx)
}

func (v *Validator) run(ctx context.Context) {
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			v.runOnce(ctx)
		case <-ctx.Done():
			v.logger.Info("credential validator stopped")
			return
		}
	}
}

func (v *Validator) runOnce(ctx context.Context) {
	for _, candidate := range v.manager.staleKeys(staleAfter) {
		if ctx.Err() != nil {
			return
		}
		v.manager.ValidateKey(ctx, candidate.provider, candidate.key, v.probe)
	}
}

// ValidateKey probes a credential and updates its status: active with a
// fresh lastValidated on success, invalid on failure.
func (m *Manager) ValidateKey(ctx context.Context, provider, key string, probe ProbeFunc) bool {
	if probe == nil {
		return false
	}

	err := probe(ctx, provider, key)

	m.mu.Lock()
	defer m.mu.Unlock()

	k := m.findKeyLocked(provider, key)
	if k == nil {
		return false
	}

	if err != nil {
		k.status = StatusInvalid
		m.logger.Warn("credential validation failed",
			"provider", provider,
			"key", observability.MaskKey(key),
			"error", err,
		)
		return false
	}

	k.lastValidated = m.now()
	if k.status == StatusInvalid {
		k.status = StatusActive
	}
	return true
}

type staleKey struct {
	provider string
	key      string
}

// staleKeys lists credentials whose last validation is older than maxAge.
func (m *Manager) staleKeys(maxAge time.Duration) []staleKey {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-maxAge)
	var stale []staleKey
	for provider, p := range m.pools {
		for _, k := range p.keys {
			if k.status == StatusSuspended {
				continue
			}
			if k.lastValidated.Before(cutoff) {
				stale = append(stale, staleKey{provider: provider, key: k.Key})
			}
		}
	}
	return stale
}
