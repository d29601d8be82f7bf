package ratelimit

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// testClock drives the limiter's time source so window boundaries are exact.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLimiter(t *testing.T, limits Limits) (*Limiter, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)}
	l := NewLimiter(slog.New(slog.NewTextHandler(testWriter{t}, nil)))
	l.now = clock.Now
	l.Register("testprov", limits)
	return l, clock
}

// testWriter routes limiter logs through the test log.
type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}

func TestLimiter_UnknownProvider(t *testing.T) {
	l := NewLimiter(nil)

	d := l.Check("nope")
	if d.Allowed {
		t.Fatal("unregistered provider should be denied")
	}
	if !strings.Contains(d.Reason, "nope") {
		t.Errorf("Reason = %q, want provider name in it", d.Reason)
	}
}

func TestLimiter_CheckDoesNotConsumeQuota(t *testing.T) {
	l, _ := newTestLimiter(t, Limits{RequestsPerMinute: 1})

	for i := 0; i < 10; i++ {
		if d := l.Check("testprov"); !d.Allowed {
			t.Fatalf("check %d denied: %s", i, d.Reason)
		}
	}
}

func TestLimiter_MinuteWindow(t *testing.T) {
	l, clock := newTestLimiter(t, Limits{RequestsPerMinute: 2})

	l.RecordSuccess("testprov")
	l.RecordSuccess("testprov")

	d := l.Check("testprov")
	if d.Allowed {
		t.Fatal("third request within the minute should be denied")
	}
	if d.Reason != "Minute limit exceeded (2)" {
		t.Errorf("Reason = %q", d.Reason)
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Errorf("RetryAfter = %v, want within (0, 1m]", d.RetryAfter)
	}

	clock.Advance(61 * time.Second)
	if d := l.Check("testprov"); !d.Allowed {
		t.Errorf("denied after window rolled over: %s", d.Reason)
	}
}

func TestLimiter_MinuteRetryAfterIsNextMinuteBoundary(t *testing.T) {
	l, clock := newTestLimiter(t, Limits{RequestsPerMinute: 1})
	clock.now = time.Date(2025, 6, 15, 10, 30, 45, 0, time.UTC)

	l.RecordSuccess("testprov")

	d := l.Check("testprov")
	if d.Allowed {
		t.Fatal("want denial")
	}
	if d.RetryAfter != 15*time.Second {
		t.Errorf("RetryAfter = %v, want 15s until 10:31:00", d.RetryAfter)
	}
}

func TestLimiter_HourlyWindow(t *testing.T) {
	l, clock := newTestLimiter(t, Limits{RequestsPerHour: 3})

	for i := 0; i < 3; i++ {
		l.RecordSuccess("testprov")
		clock.Advance(time.Minute)
	}

	d := l.Check("testprov")
	if d.Allowed {
		t.Fatal("fourth request within the hour should be denied")
	}
	if d.Reason != "Hourly limit exceeded (3)" {
		t.Errorf("Reason = %q", d.Reason)
	}

	clock.Advance(time.Hour)
	if d := l.Check("testprov"); !d.Allowed {
		t.Errorf("denied after hour rolled over: %s", d.Reason)
	}
}

func TestLimiter_DailyLimit(t *testing.T) {
	l, clock := newTestLimiter(t, Limits{RequestsPerDay: 16})

	for i := 0; i < 16; i++ {
		if d := l.Check("testprov"); !d.Allowed {
			t.Fatalf("request %d denied: %s", i, d.Reason)
		}
		l.RecordSuccess("testprov")
	}

	d := l.Check("testprov")
	if d.Allowed {
		t.Fatal("17th request should be denied")
	}
	if d.Reason != "Daily limit exceeded (16)" {
		t.Errorf("Reason = %q", d.Reason)
	}

	// 10:30 UTC leaves 13h30m until the next UTC day.
	if want := 13*time.Hour + 30*time.Minute; d.RetryAfter != want {
		t.Errorf("RetryAfter = %v, want %v", d.RetryAfter, want)
	}

	clock.Advance(14 * time.Hour)
	if d := l.Check("testprov"); !d.Allowed {
		t.Errorf("denied after UTC day rolled over: %s", d.Reason)
	}
}

func TestLimiter_DailyCountsFailuresToo(t *testing.T) {
	l, _ := newTestLimiter(t, Limits{RequestsPerDay: 2})

	l.RecordFailure("testprov", errors.New("boom"))
	l.RecordFailure("testprov", errors.New("boom"))

	if d := l.Check("testprov"); d.Allowed {
		t.Fatal("failed requests still consume the daily quota")
	}
}

func TestLimiter_Cooldown(t *testing.T) {
	l, clock := newTestLimiter(t, Limits{Cooldown: 2 * time.Second})

	l.RecordSuccess("testprov")

	clock.Advance(500 * time.Millisecond)
	d := l.Check("testprov")
	if d.Allowed {
		t.Fatal("request inside cooldown should be denied")
	}
	if d.Reason != "Cooldown period active" {
		t.Errorf("Reason = %q", d.Reason)
	}
	if want := 1500 * time.Millisecond; d.WaitTime != want {
		t.Errorf("WaitTime = %v, want %v", d.WaitTime, want)
	}

	clock.Advance(2 * time.Second)
	if d := l.Check("testprov"); !d.Allowed {
		t.Errorf("denied after cooldown elapsed: %s", d.Reason)
	}
}

func TestLimiter_CircuitBreaker(t *testing.T) {
	l, clock := newTestLimiter(t, Limits{
		CircuitBreakerThreshold: 3,
		CircuitBreakerTimeout:   time.Minute,
	})

	boom := errors.New("server exploded")
	l.RecordFailure("testprov", boom)
	l.RecordFailure("testprov", boom)
	if d := l.Check("testprov"); !d.Allowed {
		t.Fatalf("breaker opened below threshold: %s", d.Reason)
	}

	l.RecordFailure("testprov", boom)
	d := l.Check("testprov")
	if d.Allowed {
		t.Fatal("breaker should be open after third consecutive failure")
	}
	if d.Reason != "Circuit breaker open" {
		t.Errorf("Reason = %q", d.Reason)
	}
	if d.RetryAfter != time.Minute {
		t.Errorf("RetryAfter = %v, want 1m", d.RetryAfter)
	}

	// Breaker timeout elapses; the next allowed call is the half-open trial.
	clock.Advance(time.Minute + time.Second)
	if d := l.Check("testprov"); !d.Allowed {
		t.Fatalf("denied after breaker timeout: %s", d.Reason)
	}

	l.RecordSuccess("testprov")
	stats, ok := l.UsageStats("testprov")
	if !ok {
		t.Fatal("missing stats")
	}
	if stats.CircuitOpen {
		t.Error("breaker should be closed after a trial success")
	}
	if stats.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d, want 0", stats.ConsecutiveFailures)
	}
}

func TestLimiter_SuccessResetsFailureStreak(t *testing.T) {
	l, _ := newTestLimiter(t, Limits{
		CircuitBreakerThreshold: 3,
		CircuitBreakerTimeout:   time.Minute,
	})

	boom := errors.New("boom")
	l.RecordFailure("testprov", boom)
	l.RecordFailure("testprov", boom)
	l.RecordSuccess("testprov")
	l.RecordFailure("testprov", boom)
	l.RecordFailure("testprov", boom)

	if d := l.Check("testprov"); !d.Allowed {
		t.Fatalf("streak should have reset on success: %s", d.Reason)
	}
}

func TestLimiter_ForceOpen(t *testing.T) {
	l, clock := newTestLimiter(t, Limits{
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
	})

	l.ForceOpen("testprov")
	if d := l.Check("testprov"); d.Allowed {
		t.Fatal("forced-open breaker should deny")
	}

	clock.Advance(31 * time.Second)
	if d := l.Check("testprov"); !d.Allowed {
		t.Errorf("denied after breaker timeout: %s", d.Reason)
	}
}

func TestLimiter_CheckOrder(t *testing.T) {
	// Every window is exhausted at once; the widest constraint wins.
	l, _ := newTestLimiter(t, Limits{
		RequestsPerMinute:       1,
		RequestsPerHour:         1,
		RequestsPerDay:          1,
		Cooldown:                time.Minute,
		CircuitBreakerThreshold: 1,
		CircuitBreakerTimeout:   time.Hour,
	})

	l.RecordFailure("testprov", errors.New("boom"))

	d := l.Check("testprov")
	if d.Reason != "Circuit breaker open" {
		t.Errorf("Reason = %q, want circuit breaker first", d.Reason)
	}
}

func TestLimiter_ErrorsSince(t *testing.T) {
	l, clock := newTestLimiter(t, Limits{})

	l.RecordFailure("testprov", errors.New("old"))
	clock.Advance(10 * time.Minute)
	l.RecordFailure("testprov", errors.New("recent"))
	l.RecordSuccess("testprov")
	l.RecordFailure("testprov", errors.New("recent"))

	cutoff := clock.Now().Add(-5 * time.Minute)
	if got := l.ErrorsSince("testprov", cutoff); got != 2 {
		t.Errorf("ErrorsSince = %d, want 2", got)
	}
}

func TestLimiter_PruneKeepsDailyCount(t *testing.T) {
	l, clock := newTestLimiter(t, Limits{RequestsPerDay: 100})

	l.RecordSuccess("testprov")
	clock.Advance(2 * time.Hour)
	l.RecordSuccess("testprov")
	l.Prune()

	stats, _ := l.UsageStats("testprov")
	if stats.RequestsLastHour != 1 {
		t.Errorf("RequestsLastHour = %d, want 1 after prune", stats.RequestsLastHour)
	}
	// The daily counter survives event pruning.
	if stats.RequestsToday != 2 {
		t.Errorf("RequestsToday = %d, want 2", stats.RequestsToday)
	}
}

func TestLimiter_ReRegisterKeepsState(t *testing.T) {
	l, _ := newTestLimiter(t, Limits{RequestsPerMinute: 5})

	l.RecordSuccess("testprov")
	l.Register("testprov", Limits{RequestsPerMinute: 1})

	if d := l.Check("testprov"); d.Allowed {
		t.Fatal("tightened limit should apply to accumulated state")
	}
}

func TestLimiter_UsageStatsSnapshot(t *testing.T) {
	l, _ := newTestLimiter(t, Limits{RequestsPerMinute: 30, RequestsPerDay: 500})

	l.RecordSuccess("testprov")
	l.RecordSuccess("testprov")
	l.RecordFailure("testprov", errors.New("boom"))

	stats, ok := l.UsageStats("testprov")
	if !ok {
		t.Fatal("missing stats")
	}
	if stats.Provider != "testprov" {
		t.Errorf("Provider = %q", stats.Provider)
	}
	if stats.RequestsLastMinute != 3 {
		t.Errorf("RequestsLastMinute = %d, want 3", stats.RequestsLastMinute)
	}
	if stats.RequestsToday != 3 {
		t.Errorf("RequestsToday = %d, want 3", stats.RequestsToday)
	}
	if stats.ConsecutiveFailures != 1 {
		t.Errorf("ConsecutiveFailures = %d, want 1", stats.ConsecutiveFailures)
	}
	if stats.CircuitOpen {
		t.Error("breaker should not be open")
	}
}
