// Package metrics exposes Prometheus instrumentation for data operations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabledeck_operations_total",
			Help: "Total number of provider data operations.",
		},
		[]string{"provider", "action", "status"},
	)

	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tabledeck_operation_duration_seconds",
			Help:    "Provider operation latencies in seconds, including the remote call.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "action"},
	)

	rateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabledeck_rate_limited_total",
			Help: "Operations rejected by the rate limiter.",
		},
		[]string{"provider"},
	)
)

// Init registers the metrics with the default registry.
func Init() {
	prometheus.MustRegister(operationsTotal, operationDuration, rateLimited)
}

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveOperation records one completed operation attempt.
func ObserveOperation(provider, action, status string, duration time.Duration) {
	operationsTotal.WithLabelValues(provider, action, status).Inc()
	operationDuration.WithLabelValues(provider, action).Observe(duration.Seconds())
}

// ObserveRateLimited records one throttled operation.
func ObserveRateLimited(provider string) {
	rateLimited.WithLabelValues(provider).Inc()
}
