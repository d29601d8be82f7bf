// Package metrics provides Prometheus metrics for the orchestration layer:
// request outcomes, rate-limit denials, credential rotations, circuit
// breaker transitions, and cache effectiveness.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "feedgate"

// LatencyBuckets defines histogram buckets for provider latency (seconds).
var LatencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 15.0, 30.0,
}

var (
	// ProviderRequests counts outbound provider requests by outcome.
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total outbound provider requests",
		},
		[]string{"provider", "data_type", "sport", "outcome"},
	)

	// ProviderLatency tracks provider call latency.
	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_latency_seconds",
			Help:      "Provider call latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"provider", "data_type"},
	)

	// RateLimitDenials counts rate-limit check denials by reason window.
	RateLimitDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_denials_total",
			Help:      "Rate limit check denials",
		},
		[]string{"provider", "reason"},
	)

	// CircuitTransitions counts circuit breaker transitions.
	CircuitTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_transitions_total",
			Help:      "Circuit breaker state transitions",
		},
		[]string{"provider", "to_state"},
	)

	// KeyRotations counts credential rotations by reason and result.
	KeyRotations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_rotations_total",
			Help:      "Credential rotations",
		},
		[]string{"provider", "reason", "result"},
	)

	// CacheRequests counts deduplicator lookups by source.
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Deduplicated request lookups by result source",
		},
		[]string{"source"},
	)

	// ProviderFallbacks counts fallbacks to the next provider in order.
	ProviderFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_fallbacks_total",
			Help:      "Fallbacks from one provider to the next",
		},
		[]string{"from_provider", "data_type"},
	)

	// ErrorsByCategory counts classified provider failures.
	ErrorsByCategory = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Classified provider failures",
		},
		[]string{"provider", "category"},
	)
)
