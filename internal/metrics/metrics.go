// Package metrics exposes Prometheus collectors for the bundler service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	bundlerRunsTotal          *prometheus.CounterVec
	bundlerAssetsTotal        *prometheus.CounterVec
	bundlerAssetBytesTotal    prometheus.Counter
	bundlerRunDurationSeconds prometheus.Histogram
	bundlerActiveRuns         prometheus.Gauge
	httpRequestsTotal         *prometheus.CounterVec
	httpRequestDuration       *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		bundlerRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bundler_runs_total",
				Help: "Total number of bundle runs, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		bundlerAssetsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bundler_assets_total",
				Help: "Total number of assets processed, labeled by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		bundlerAssetBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bundler_asset_bytes_total",
				Help: "Total bytes of successfully downloaded assets.",
			},
		)

		bundlerRunDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bundler_run_duration_seconds",
				Help:    "Histogram of end-to-end bundle run durations.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
		)

		bundlerActiveRuns = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "bundler_active_runs",
				Help: "Number of bundle runs currently in flight.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun records a finished run with its outcome and duration.
func ObserveRun(outcome string, duration time.Duration) {
	bundlerRunsTotal.WithLabelValues(outcome).Inc()
	bundlerRunDurationSeconds.Observe(duration.Seconds())
}

// ObserveAsset records one asset download attempt.
func ObserveAsset(kind string, outcome string, bytesFetched int) {
	bundlerAssetsTotal.WithLabelValues(kind, outcome).Inc()
	if bytesFetched > 0 {
		bundlerAssetBytesTotal.Add(float64(bytesFetched))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveRuns increments the in-flight runs gauge.
func IncActiveRuns() {
	bundlerActiveRuns.Inc()
}

// DecActiveRuns decrements the in-flight runs gauge.
func DecActiveRuns() {
	bundlerActiveRuns.Dec()
}
