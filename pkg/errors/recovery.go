package errors

import (
	"log/slog"
	"time"
)

// FallbackAction tells the orchestrator what to do besides retrying.
type FallbackAction string

const (
	// FallbackNone takes no action beyond the retry decision.
	FallbackNone FallbackAction = ""
	// FallbackRotateKey switches to the next credential in the pool.
	FallbackRotateKey FallbackAction = "rotate_key"
	// FallbackNextProvider moves on to the next provider in the ordering.
	FallbackNextProvider FallbackAction = "next_provider"
	// FallbackDefaultPayload returns the caller's empty/default payload.
	FallbackDefaultPayload FallbackAction = "default_payload"
	// FallbackCachedData serves previously cached data if available.
	FallbackCachedData FallbackAction = "cached_data"
)

// Strategy describes how the orchestrator should recover from a failure.
type Strategy struct {
	ShouldRetry  bool
	RetryAfter   time.Duration
	Fallback     FallbackAction
	CircuitBreak bool
	LogLevel     slog.Level
}

const (
	networkBaseBackoff = time.Second
	networkMaxBackoff  = 30 * time.Second
	serverBaseBackoff  = 2 * time.Second
	serverMaxBackoff   = 60 * time.Second
	rateLimitBackoff   = 60 * time.Second
	flatBackoff        = 5 * time.Second
)

// StrategyFor returns the recovery strategy for a category on the given
// attempt. attempt is zero-based: the first failure of a request passes 0.
func StrategyFor(category Category, attempt int) Strategy {
	switch category {
	case CategoryNetwork:
		return Strategy{
			ShouldRetry: attempt < 3,
			RetryAfter:  expBackoff(networkBaseBackoff, attempt, networkMaxBackoff),
			LogLevel:    slog.LevelWarn,
		}
	case CategoryRateLimit:
		return Strategy{
			ShouldRetry: true,
			RetryAfter:  rateLimitBackoff,
			Fallback:    FallbackRotateKey,
			LogLevel:    slog.LevelWarn,
		}
	case CategoryAuthentication:
		return Strategy{
			ShouldRetry:  false,
			Fallback:     FallbackRotateKey,
			CircuitBreak: true,
			LogLevel:     slog.LevelError,
		}
	case CategoryAuthorization:
		return Strategy{
			ShouldRetry: attempt < 2,
			RetryAfter:  flatBackoff,
			Fallback:    FallbackNextProvider,
			LogLevel:    slog.LevelError,
		}
	case CategoryServerError:
		return Strategy{
			ShouldRetry: attempt < 3,
			RetryAfter:  expBackoff(serverBaseBackoff, attempt, serverMaxBackoff),
			Fallback:    FallbackNextProvider,
			LogLevel:    slog.LevelWarn,
		}
	case CategoryDataError:
		return Strategy{
			ShouldRetry: false,
			Fallback:    FallbackDefaultPayload,
			LogLevel:    slog.LevelWarn,
		}
	case CategoryDatabase:
		return Strategy{
			ShouldRetry: attempt < 2,
			RetryAfter:  flatBackoff,
			Fallback:    FallbackCachedData,
			LogLevel:    slog.LevelError,
		}
	case CategoryValidation:
		return Strategy{
			ShouldRetry: false,
			LogLevel:    slog.LevelWarn,
		}
	default:
		return Strategy{
			ShouldRetry: attempt < 1,
			RetryAfter:  flatBackoff,
			LogLevel:    slog.LevelError,
		}
	}
}

// expBackoff computes base * 2^attempt capped at max.
func expBackoff(base time.Duration, attempt int, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		return max
	}
	d := base * time.Duration(1<<uint(attempt))
	if d > max {
		return max
	}
	return d
}
