// Package observability provides Prometheus metrics for monitoring the
// conversation engine.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// TurnsTotal counts conversation turns by provider, model, and outcome.
	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "converser_turns_total",
			Help: "Conversation turns",
		},
		[]string{"provider", "model", "status"},
	)

	// TurnDuration records full turn duration in seconds, including all
	// tool-call rounds.
	TurnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "converser_turn_duration_seconds",
			Help:    "Turn duration",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "model"},
	)

	// ProviderRequestsTotal counts requests sent to backend LLM providers.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "converser_provider_requests_total",
			Help: "Provider requests",
		},
		[]string{"provider", "model", "status"},
	)

	// ProviderLatency records backend provider latency in seconds.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "converser_provider_latency_seconds",
			Help:    "Provider latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "model"},
	)

	// ProviderTokensTotal counts tokens processed by direction (input/output).
	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "converser_provider_tokens_total",
			Help: "Token count",
		},
		[]string{"provider", "model", "direction"},
	)

	// InvocationsTotal counts tool invocations by invoker name and outcome.
	InvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "converser_invocations_total",
			Help: "Tool invocations",
		},
		[]string{"invoker", "status"},
	)

	// InvocationDuration records tool invocation duration in seconds.
	InvocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "converser_invocation_duration_seconds",
			Help:    "Invocation duration",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"invoker"},
	)

	// StreamEventsTotal counts streaming events forwarded to sinks by type.
	StreamEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "converser_stream_events_total",
			Help: "Stream events",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(
		TurnsTotal,
		TurnDuration,
		ProviderRequestsTotal,
		ProviderLatency,
		ProviderTokensTotal,
		InvocationsTotal,
		InvocationDuration,
		StreamEventsTotal,
	)
}
