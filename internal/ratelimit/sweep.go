package ratelimit

import (
	"context"
	"time"
)

// Start launches the periodic window sweep. It runs until the context is
// canceled so shutdown never leaks the ticker goroutine.
func (l *Limiter) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				l.Prune()
			case <-ctx.Done():
				return
			}
		}
	}()
}
