// Package metrics defines Prometheus metrics for embedding calls and the HTTP API.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Embedding Prometheus metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jester",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jester",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)

	EmbeddingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jester",
			Name:      "embedding_errors_total",
			Help:      "Total embedding errors",
		},
		[]string{"provider", "model", "error_type"},
	)

	MeasurementMapsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jester",
			Name:      "measurement_maps_total",
			Help:      "Total measurement normalization lookups",
		},
		[]string{"outcome"}, // "exact" / "fuzzy" / "no_match"
	)

	SearchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jester",
			Name:      "searches_total",
			Help:      "Total retrieval searches",
		},
	)
)

var registered bool

// Register registers the Jester Prometheus metrics. Must be called once from main.
func Register() {
	if registered {
		return
	}
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingErrorsTotal)
	prometheus.MustRegister(MeasurementMapsTotal)
	prometheus.MustRegister(SearchesTotal)
	registered = true
}
