package errors

import (
	"errors"
	"testing"
)

func TestClassify_ByMessage(t *testing.T) {
	tests := []struct {
		msg  string
		want Category
	}{
		{"Rate limit exceeded for key", CategoryRateLimit},
		{"got 429 from upstream", CategoryRateLimit},
		{"Too Many Requests", CategoryRateLimit},
		{"Unauthorized", CategoryAuthentication},
		{"invalid api key provided", CategoryAuthentication},
		{"Forbidden: plan does not include odds", CategoryAuthorization},
		{"access denied for resource", CategoryAuthorization},
		{"502 Bad Gateway", CategoryServerError},
		{"internal server error", CategoryServerError},
		{"service unavailable, try later", CategoryServerError},
		{"dial tcp: connection refused", CategoryNetwork},
		{"request timeout after 10s", CategoryNetwork},
		{"lookup api.example.com: no such host", CategoryNetwork},
		{"fetch failed", CategoryNetwork},
		{"invalid json in response body", CategoryDataError},
		{"unexpected end of JSON input", CategoryDataError},
		{"malformed odds payload", CategoryDataError},
		{"database is locked", CategoryDatabase},
		{"query returned no rows", CategoryDatabase},
		{"validation failed for field sport", CategoryValidation},
		{"sport is required", CategoryValidation},
		{"something completely different", CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			if got := Classify(errors.New(tt.msg)); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.msg, got, tt.want)
			}
		})
	}
}

func TestClassify_MessagePriority(t *testing.T) {
	// "rate limit" wins over the later "timeout" match; classification
	// checks categories in a fixed priority order.
	got := Classify(errors.New("rate limit hit, connection timeout while retrying"))
	if got != CategoryRateLimit {
		t.Errorf("Classify() = %v, want rate_limit to win", got)
	}

	// "invalid" alone is validation, but "invalid api key" is authentication.
	if got := Classify(errors.New("invalid api key")); got != CategoryAuthentication {
		t.Errorf("Classify() = %v, want authentication", got)
	}
}

func TestClassify_StatusTakesPrecedence(t *testing.T) {
	// A 429 with a misleading body still classifies as rate limit.
	err := &FeedError{StatusCode: 429, Message: "database exploded", Provider: "p"}
	if got := Classify(err); got != CategoryRateLimit {
		t.Errorf("Classify() = %v, want rate_limit from status", got)
	}

	err = &FeedError{StatusCode: 503, Message: "whatever", Provider: "p"}
	if got := Classify(err); got != CategoryServerError {
		t.Errorf("Classify() = %v, want server_error from status", got)
	}

	// Statuses without a direct mapping fall through to the message.
	err = &FeedError{StatusCode: 404, Message: "parse error in body", Provider: "p"}
	if got := Classify(err); got != CategoryDataError {
		t.Errorf("Classify() = %v, want data_error from message", got)
	}
}

func TestClassify_NilError(t *testing.T) {
	if got := Classify(nil); got != CategoryUnknown {
		t.Errorf("Classify(nil) = %v, want unknown", got)
	}
}

func TestClassify_IsDeterministic(t *testing.T) {
	err := errors.New("connection refused")
	first := Classify(err)
	for i := 0; i < 100; i++ {
		if got := Classify(err); got != first {
			t.Fatalf("classification changed between calls: %v vs %v", first, got)
		}
	}
}
