// Package metrics registers the Prometheus metrics used by the gateway.
// Import this package (via blank import if nothing else) from the server
// entry point so that all metrics exist before /metrics is mounted.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts routed requests labelled by provider, model, and
	// outcome ("success", "error").
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelgateway_requests_total",
			Help: "Total number of requests routed by the gateway.",
		},
		[]string{"provider", "model", "status"},
	)

	// RequestDuration observes end-to-end routing latency in seconds.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modelgateway_request_duration_seconds",
			Help:    "End-to-end request duration in seconds.",
			Buckets: []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	// TokensInput counts prompt tokens reported by providers.
	TokensInput = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelgateway_tokens_input_total",
			Help: "Total prompt tokens sent to providers.",
		},
		[]string{"provider", "model"},
	)

	// TokensOutput counts completion tokens reported by providers.
	TokensOutput = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelgateway_tokens_output_total",
			Help: "Total completion tokens received from providers.",
		},
		[]string{"provider", "model"},
	)

	// CandidateDispositions counts per-candidate outcomes inside the fallback
	// loop ("success", "circuit_open", "cannot_fulfill", and the lowercase
	// error codes).
	CandidateDispositions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelgateway_candidate_dispositions_total",
			Help: "Per-candidate dispositions observed during routing.",
		},
		[]string{"provider", "disposition"},
	)

	// BucketRejections counts requests refused by a provider's local token
	// bucket before any vendor call.
	BucketRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelgateway_token_bucket_rejections_total",
			Help: "Requests refused by the per-adapter token bucket.",
		},
		[]string{"provider"},
	)

	// CircuitState tracks breaker state per "{provider}#{region}" key:
	// 0 = closed, 1 = open, 2 = half_open.
	CircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "modelgateway_circuit_state",
			Help: "Circuit breaker state per provider-region (0=closed 1=open 2=half_open).",
		},
		[]string{"key"},
	)

	// CircuitTransitions counts breaker state transitions.
	CircuitTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelgateway_circuit_transitions_total",
			Help: "Circuit breaker state transitions.",
		},
		[]string{"key", "from", "to"},
	)

	// EstimatedCostUSD accumulates the routing cost estimate of served
	// requests, labelled by the provider that served them.
	EstimatedCostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelgateway_estimated_cost_usd_total",
			Help: "Estimated request cost in USD, from configured per-token prices.",
		},
		[]string{"provider", "model"},
	)

	// ConfigRefreshes counts config store refresh attempts by outcome
	// ("ok", "degraded").
	ConfigRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelgateway_config_refreshes_total",
			Help: "Config store refresh attempts.",
		},
		[]string{"outcome"},
	)
)

// SetCircuitState updates the CircuitState gauge from a status string.
func SetCircuitState(key, status string) {
	var v float64
	switch status {
	case "OPEN":
		v = 1
	case "HALF_OPEN":
		v = 2
	}
	CircuitState.WithLabelValues(key).Set(v)
}
