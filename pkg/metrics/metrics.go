// Package metrics holds the Prometheus collectors exposed at /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

var (
	schemaDiscoveryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ekaya_reports_schema_discovery_total",
			Help: "Schema discovery attempts by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	rdlDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ekaya_reports_rdl_documents_total",
			Help: "Report definitions generated, by outcome.",
		},
		[]string{"outcome"},
	)

	ssrsPublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ekaya_reports_ssrs_publish_total",
			Help: "Report uploads to the report server, by outcome.",
		},
		[]string{"outcome"},
	)

	llmRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ekaya_reports_llm_requests_total",
			Help: "LLM requests by purpose and outcome.",
		},
		[]string{"purpose", "outcome"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ekaya_reports_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		schemaDiscoveryTotal,
		rdlDocumentsTotal,
		ssrsPublishTotal,
		llmRequestsTotal,
		httpRequestDurationSeconds,
	)
}

func ObserveDiscoveryTier(tier, outcome string) {
	schemaDiscoveryTotal.WithLabelValues(tier, outcome).Inc()
}

func ObserveRDLDocument(outcome string) {
	rdlDocumentsTotal.WithLabelValues(outcome).Inc()
}

func ObservePublish(outcome string) {
	ssrsPublishTotal.WithLabelValues(outcome).Inc()
}

func ObserveLLMRequest(purpose, outcome string) {
	llmRequestsTotal.WithLabelValues(purpose, outcome).Inc()
}

func ObserveHTTPRequest(method, path, status string, elapsed time.Duration) {
	httpRequestDurationSeconds.WithLabelValues(method, path, status).Observe(elapsed.Seconds())
}

// Outcome maps an error to OutcomeSuccess or OutcomeFailure.
func Outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
