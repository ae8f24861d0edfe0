package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics. All recording methods are safe on a
// nil receiver so components can run without metrics in tests.
type Metrics struct {
	// Payment metrics
	OutcomesTotal   *prometheus.CounterVec
	PaymentDuration *prometheus.HistogramVec
	ActivePayments  prometheus.Gauge

	// Gateway metrics
	GatewayRequestsTotal   *prometheus.CounterVec
	GatewayRequestDuration *prometheus.HistogramVec
	ReconciliationsTotal   *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState       *prometheus.GaugeVec
	CircuitBreakerTransitions *prometheus.CounterVec

	// Worker metrics
	WorkerRecordsProcessed   *prometheus.CounterVec
	WorkerProcessingDuration prometheus.Histogram
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := prometheus.WrapRegistererWith(nil, reg)

	m := &Metrics{
		OutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payment_outcomes_total",
				Help:      "Total number of purchase and refund outcomes by kind",
			},
			[]string{"operation", "outcome", "reconciled"},
		),
		PaymentDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "payment_duration_seconds",
				Help:      "End-to-end purchase or refund duration in seconds, including reconciliation",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"operation"},
		),
		ActivePayments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_payments",
				Help:      "Number of purchases and refunds currently in flight",
			},
		),
		GatewayRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_requests_total",
				Help:      "Total number of gateway exchanges by result",
			},
			[]string{"method", "path", "result"},
		),
		GatewayRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gateway_request_duration_seconds",
				Help:      "Gateway exchange duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		ReconciliationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciliations_total",
				Help:      "Total number of reference lookups by source and resulting outcome",
			},
			[]string{"source", "outcome"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		CircuitBreakerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_transitions_total",
				Help:      "Total number of circuit breaker state changes",
			},
			[]string{"name", "to"},
		),
		WorkerRecordsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciler_records_processed_total",
				Help:      "Total number of unknown payments processed by the reconciler",
			},
			[]string{"status"},
		),
		WorkerProcessingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reconciler_batch_duration_seconds",
				Help:      "Reconciler batch duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),
	}

	// Register all collectors
	factory.MustRegister(
		m.OutcomesTotal,
		m.PaymentDuration,
		m.ActivePayments,
		m.GatewayRequestsTotal,
		m.GatewayRequestDuration,
		m.ReconciliationsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CircuitBreakerState,
		m.CircuitBreakerTransitions,
		m.WorkerRecordsProcessed,
		m.WorkerProcessingDuration,
	)

	return m
}

// ObserveGatewayRequest records one gateway exchange.
func (m *Metrics) ObserveGatewayRequest(method, path, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.GatewayRequestsTotal.WithLabelValues(method, path, result).Inc()
	m.GatewayRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// BreakerStateChanged records a gobreaker state transition.
func (m *Metrics) BreakerStateChanged(name, _, to string) {
	if m == nil {
		return
	}
	m.CircuitBreakerTransitions.WithLabelValues(name, to).Inc()
	m.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
}

// RecordOutcome counts a final purchase or refund outcome.
func (m *Metrics) RecordOutcome(operation, outcome string, reconciled bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.OutcomesTotal.WithLabelValues(operation, outcome, strconv.FormatBool(reconciled)).Inc()
	m.PaymentDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// RecordReconciliation counts a reference lookup; source is "inline" or "worker".
func (m *Metrics) RecordReconciliation(source, outcome string) {
	if m == nil {
		return
	}
	m.ReconciliationsTotal.WithLabelValues(source, outcome).Inc()
}

// TrackActive increments the in-flight gauge and returns its decrement.
func (m *Metrics) TrackActive() func() {
	if m == nil {
		return func() {}
	}
	m.ActivePayments.Inc()
	return m.ActivePayments.Dec
}

// RecordReconcilerBatch counts the records one reconciler pass settled,
// keyed by resulting status.
func (m *Metrics) RecordReconcilerBatch(counts map[string]int, elapsed time.Duration) {
	if m == nil {
		return
	}
	for status, n := range counts {
		if n > 0 {
			m.WorkerRecordsProcessed.WithLabelValues(status).Add(float64(n))
		}
	}
	m.WorkerProcessingDuration.Observe(elapsed.Seconds())
}

func breakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}
