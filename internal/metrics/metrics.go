// Package metrics holds the Prometheus collectors for request dispatch and
// file transfers. A nil *Metrics is valid and records nothing, so handlers
// can be built without instrumentation.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Transfer outcomes used as the "outcome" label.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeAborted   = "aborted"
)

// RequestBuckets covers static file requests from sub-millisecond cache hits
// to slow multi-megabyte downloads.
var RequestBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30}

type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	ConnectionsActive prometheus.Gauge
	TransfersActive   prometheus.Gauge
	TransfersTotal    *prometheus.CounterVec
	TransferBytes     prometheus.Counter
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hearth_requests_total",
				Help: "Completed requests",
			},
			[]string{"method", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hearth_request_duration_seconds",
				Help:    "Time from dispatch to the last byte being flushed",
				Buckets: RequestBuckets,
			},
			[]string{"method"},
		),
		ConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hearth_connections_active",
				Help: "Open client connections",
			},
		),
		TransfersActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hearth_file_transfers_active",
				Help: "File transfers in progress",
			},
		),
		TransfersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hearth_file_transfers_total",
				Help: "Finished file transfers by outcome",
			},
			[]string{"outcome"},
		),
		TransferBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hearth_file_transfer_bytes_total",
				Help: "File bytes acknowledged by client connections",
			},
		),
	}

	m.registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ConnectionsActive,
		m.TransfersActive,
		m.TransfersTotal,
		m.TransferBytes,
	)
	return m
}

// Gatherer exposes the registry for the metrics endpoint.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// StatusClass maps 404 to "4xx".
func StatusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}

func (m *Metrics) ObserveRequest(method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, StatusClass(status)).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.ConnectionsActive.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.ConnectionsActive.Dec()
	}
}

func (m *Metrics) TransferStarted() {
	if m != nil {
		m.TransfersActive.Inc()
	}
}

func (m *Metrics) TransferChunk(n int) {
	if m != nil {
		m.TransferBytes.Add(float64(n))
	}
}

func (m *Metrics) TransferFinished(outcome string) {
	if m == nil {
		return
	}
	m.TransfersActive.Dec()
	m.TransfersTotal.WithLabelValues(outcome).Inc()
}
