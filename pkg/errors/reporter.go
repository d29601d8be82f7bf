package errors

import (
	"log/slog"
	"sync"
	"time"
)

// defaultDampenWindow is how long a category stays "recently seen" for
// log-level dampening.
const defaultDampenWindow = 5 * time.Minute

// Reporter dampens log severity for repeated failures of the same category
// so a flapping provider does not turn the log into a storm of errors.
// The first occurrence within the window logs at the strategy's level;
// subsequent occurrences are demoted one level.
type Reporter struct {
	mu       sync.Mutex
	window   time.Duration
	lastSeen map[Category]time.Time
	now      func() time.Time
}

// NewReporter creates a reporter with the given dampening window.
// A non-positive window uses the default of five minutes.
func NewReporter(window time.Duration) *Reporter {
	if window <= 0 {
		window = defaultDampenWindow
	}
	return &Reporter{
		window:   window,
		lastSeen: make(map[Category]time.Time),
		now:      time.Now,
	}
}

// LevelFor returns the severity to log a failure of the given category at,
// and records the occurrence.
func (r *Reporter) LevelFor(category Category, base slog.Level) slog.Level {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	last, seen := r.lastSeen[category]
	r.lastSeen[category] = now

	if seen && now.Sub(last) < r.window {
		return demote(base)
	}
	return base
}

func demote(level slog.Level) slog.Level {
	switch {
	case level >= slog.LevelError:
		return slog.LevelWarn
	case level >= slog.LevelWarn:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
