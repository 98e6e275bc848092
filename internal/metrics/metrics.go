// Package metrics exposes the agent core's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	InputsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipewise_inputs_received_total",
		Help: "Normalized inputs published on the event bus.",
	}, []string{"org", "source"})

	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipewise_decisions_total",
		Help: "Decisions produced by the engine, by post-classification state.",
	}, []string{"org", "state"})

	FallbackDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipewise_fallback_decisions_total",
		Help: "Decisions produced without the model after the LLM path failed.",
	}, []string{"org"})

	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipewise_actions_total",
		Help: "Executed actions by kind and result.",
	}, []string{"org", "kind", "result"})

	PendingDecisions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pipewise_pending_decisions",
		Help: "Decisions currently awaiting human confirmation.",
	}, []string{"org"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipewise_http_request_duration_seconds",
		Help:    "HTTP request latency by method and status class.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
