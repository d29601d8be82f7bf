package ratelimit

import (
	"context"
	"time"

	feederrors "github.com/apexsports/feedgate/pkg/errors"
)

// maxSlotWait bounds how long Execute will sleep for a denied check before
// giving up. Longer waits (daily or hourly windows, open breakers) surface
// immediately as rate-limit errors so the orchestrator can fall back.
const maxSlotWait = 5 * time.Second

// Execute runs fn only after a rate-limit slot is available for the provider
// and records the outcome. Short denials (cooldown, minute window) are waited
// out; anything longer fails fast with a rate-limit error carrying the
// limiter's reason.
func Execute[T any](ctx context.Context, l *Limiter, provider, requestKey string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	for {
		decision := l.Check(provider)
		if decision.Allowed {
			break
		}
		if decision.WaitTime <= 0 || decision.WaitTime > maxSlotWait {
			return zero, feederrors.NewRateLimitError(provider, decision.Reason)
		}

		l.logger.Debug("waiting for rate limit slot",
			"provider", provider,
			"request_key", requestKey,
			"wait", decision.WaitTime,
			"reason", decision.Reason,
		)

		timer := time.NewTimer(decision.WaitTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	if err := l.checkShared(ctx, provider); err != nil {
		return zero, err
	}

	result, err := fn(ctx)
	if err != nil {
		l.RecordFailure(provider, err)
		return zero, err
	}

	l.RecordSuccess(provider)
	return result, nil
}

// checkShared consults the shared window store for the provider's minute
// window. Store failures are logged and fail open: a broken Redis must not
// take the dashboard down with it.
func (l *Limiter) checkShared(ctx context.Context, provider string) error {
	l.mu.Lock()
	store := l.shared
	limits, registered := l.limits[provider]
	l.mu.Unlock()

	if store == nil || !registered || limits.RequestsPerMinute <= 0 {
		return nil
	}

	count, resetAt, err := store.Incr(ctx, provider, time.Minute)
	if err != nil {
		l.logger.Warn("shared window store unavailable, failing open",
			"provider", provider,
			"error", err,
		)
		return nil
	}

	if count > int64(limits.RequestsPerMinute) {
		wait := time.Until(time.Unix(resetAt, 0))
		if wait < 0 {
			wait = 0
		}
		return feederrors.NewRateLimitError(provider,
			"Minute limit exceeded across replicas, retry after "+wait.Truncate(time.Second).String())
	}
	return nil
}
