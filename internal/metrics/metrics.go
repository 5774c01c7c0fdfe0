// Package metrics exposes Prometheus collectors for the pipeline.
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
	workerCallsTotal      *prometheus.CounterVec
	workerCandidatesTotal *prometheus.CounterVec
	breakerTripsTotal     *prometheus.CounterVec
	stageDurationSeconds  *prometheus.HistogramVec
	validationCallsTotal  *prometheus.CounterVec
	tokensTotal           *prometheus.CounterVec
	activeWorkers         prometheus.Gauge
	httpRequestsTotal     *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		workerCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trip_worker_calls_total",
				Help: "Total number of worker executions, labeled by worker and output status.",
			},
			[]string{"worker", "status"},
		)

		workerCandidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trip_worker_candidates_total",
				Help: "Total number of candidates produced, labeled by worker.",
			},
			[]string{"worker"},
		)

		breakerTripsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trip_breaker_trips_total",
				Help: "Total number of circuit breaker state transitions into open, labeled by provider.",
			},
			[]string{"provider"},
		)

		stageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trip_stage_duration_seconds",
				Help:    "Histogram of pipeline stage durations, labeled by stage.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
			},
			[]string{"stage"},
		)

		validationCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trip_validation_calls_total",
				Help: "Total number of cross-source validation attempts, labeled by resulting status.",
			},
			[]string{"status"},
		)

		tokensTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trip_llm_tokens_total",
				Help: "Total LLM tokens consumed, labeled by worker and direction.",
			},
			[]string{"worker", "direction"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "trip_active_workers",
				Help: "Number of workers currently executing an assignment.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trip_http_requests_total",
				Help: "Total number of API requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveWorkerCall increments the worker execution metrics. No-op before Init.
func ObserveWorkerCall(worker, status string, candidates int) {
	if workerCallsTotal == nil {
		return
	}
	workerCallsTotal.WithLabelValues(worker, status).Inc()
	if candidates > 0 {
		workerCandidatesTotal.WithLabelValues(worker).Add(float64(candidates))
	}
}

// ObserveBreakerTrip increments the breaker trip counter. No-op before Init.
func ObserveBreakerTrip(provider string) {
	if breakerTripsTotal == nil {
		return
	}
	breakerTripsTotal.WithLabelValues(provider).Inc()
}

// ObserveStage records the duration of a completed stage. No-op before Init.
func ObserveStage(stage string, duration time.Duration) {
	if stageDurationSeconds == nil {
		return
	}
	stageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveValidation increments the validation counter for the given status.
// No-op before Init.
func ObserveValidation(status string) {
	if validationCallsTotal == nil {
		return
	}
	validationCallsTotal.WithLabelValues(status).Inc()
}

// ObserveTokens records LLM token consumption. No-op before Init.
func ObserveTokens(worker string, input, output int64) {
	if tokensTotal == nil {
		return
	}
	tokensTotal.WithLabelValues(worker, "input").Add(float64(input))
	tokensTotal.WithLabelValues(worker, "output").Add(float64(output))
}

// IncActiveWorkers increments the active workers gauge. No-op before Init.
func IncActiveWorkers() {
	if activeWorkers != nil {
		activeWorkers.Inc()
	}
}

// DecActiveWorkers decrements the active workers gauge. No-op before Init.
func DecActiveWorkers() {
	if activeWorkers != nil {
		activeWorkers.Dec()
	}
}

// ObserveHTTPRequest increments the API request counter. No-op before Init.
func ObserveHTTPRequest(method string, code int) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
}
