/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package reqflow

import (
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome is a result of the dispatch used in metrics.
type Outcome string

// Dispatch outcomes.
const (
	OutcomeOK             Outcome = "ok"
	OutcomeError          Outcome = "error"
	OutcomeCanceled       Outcome = "canceled"
	OutcomeSuppressed     Outcome = "suppressed"
	OutcomeRetryExhausted Outcome = "retry_exhausted"
)

// OutcomeOf returns the outcome of the dispatch finished with the given error.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case IsCancellation(err):
		return OutcomeCanceled
	case errors.Is(err, ErrDuplicateSuppressed):
		return OutcomeSuppressed
	case errors.Is(err, ErrRetryExhausted):
		return OutcomeRetryExhausted
	}
	return OutcomeError
}

// Tracking table names used in metrics.
const (
	TableInFlight  = "in_flight"
	TableDebounced = "debounced"
	TableRetries   = "retries"
)

// MetricsCollector collects metrics of the dispatcher.
type MetricsCollector interface {
	// DispatchFinished is called once per Dispatch call (retries are not counted separately).
	DispatchFinished(method string, outcome Outcome, elapsed time.Duration)

	// RetryScheduled is called when a timed out request is scheduled for reconnection.
	RetryScheduled(method string)

	// TableSize is called when the number of entries in the tracking table may have changed.
	TableSize(table string, size int)
}

type disabledMetrics struct{}

func (disabledMetrics) DispatchFinished(string, Outcome, time.Duration) {}
func (disabledMetrics) RetryScheduled(string)                           {}
func (disabledMetrics) TableSize(string, int)                           {}

// PrometheusMetricsCollector is a Prometheus metrics collector.
type PrometheusMetricsCollector struct {
	Dispatches *prometheus.CounterVec
	Durations  *prometheus.HistogramVec
	Retries    *prometheus.CounterVec
	Tables     *prometheus.GaugeVec
}

// NewPrometheusMetricsCollector creates a new Prometheus metrics collector.
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	return &PrometheusMetricsCollector{
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reqflow_dispatches_total",
			Help:      "Number of dispatched requests by outcome.",
		}, []string{"method", "outcome"}),
		Durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reqflow_dispatch_duration_seconds",
			Help:      "A histogram of the dispatch durations including delays and reconnections.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"method", "outcome"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reqflow_retries_total",
			Help:      "Number of scheduled reconnection attempts.",
		}, []string{"method"}),
		Tables: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reqflow_tracked_requests",
			Help:      "Current number of entries in the tracking tables.",
		}, []string{"table"}),
	}
}

// MustRegister registers the Prometheus metrics.
func (p *PrometheusMetricsCollector) MustRegister() {
	prometheus.MustRegister(p.Dispatches, p.Durations, p.Retries, p.Tables)
}

// Unregister the Prometheus metrics.
func (p *PrometheusMetricsCollector) Unregister() {
	prometheus.Unregister(p.Dispatches)
	prometheus.Unregister(p.Durations)
	prometheus.Unregister(p.Retries)
	prometheus.Unregister(p.Tables)
}

// DispatchFinished implements MetricsCollector.
func (p *PrometheusMetricsCollector) DispatchFinished(method string, outcome Outcome, elapsed time.Duration) {
	method = strings.ToUpper(method)
	p.Dispatches.WithLabelValues(method, string(outcome)).Inc()
	p.Durations.WithLabelValues(method, string(outcome)).Observe(elapsed.Seconds())
}

// RetryScheduled implements MetricsCollector.
func (p *PrometheusMetricsCollector) RetryScheduled(method string) {
	p.Retries.WithLabelValues(strings.ToUpper(method)).Inc()
}

// TableSize implements MetricsCollector.
func (p *PrometheusMetricsCollector) TableSize(table string, size int) {
	p.Tables.WithLabelValues(table).Set(float64(size))
}
