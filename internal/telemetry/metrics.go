package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments the decision pipeline updates
// directly. Exposing them over HTTP (AEGIS_METRICS_ADDR) is an
// out-of-scope collaborator concern; the counters themselves are exercised
// by core code and unit tests regardless of whether anything ever scrapes
// them.
type Metrics struct {
	PromptRequestsTotal    *prometheus.CounterVec
	ToolPrepareTotal       *prometheus.CounterVec
	ToolCommitTotal        *prometheus.CounterVec
	DecisionLatencySeconds *prometheus.HistogramVec
}

// NewMetrics registers and returns a fresh instrument set against reg. A
// caller that only wants unit-level counting without exposition can pass
// prometheus.NewRegistry() to avoid clobbering the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PromptRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aegis",
			Name:      "prompt_requests_total",
			Help:      "Chat completion requests processed by the Prompt Gateway, by outcome.",
		}, []string{"outcome"}),
		ToolPrepareTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aegis",
			Name:      "tool_prepare_total",
			Help:      "Tool prepare calls, by outcome.",
		}, []string{"outcome"}),
		ToolCommitTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aegis",
			Name:      "tool_commit_total",
			Help:      "Tool commit calls, by outcome.",
		}, []string{"outcome"}),
		DecisionLatencySeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aegis",
			Name:      "decision_latency_seconds",
			Help:      "End-to-end latency of a gateway decision, by pipeline stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
	}

	reg.MustRegister(m.PromptRequestsTotal, m.ToolPrepareTotal, m.ToolCommitTotal, m.DecisionLatencySeconds)
	return m
}
