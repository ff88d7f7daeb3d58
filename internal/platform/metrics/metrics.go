// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the service collectors. A nil *Metrics is a no-op.
type Metrics struct {
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Transfer transitions by destination status
	TransferTransitions *prometheus.CounterVec

	// Permission checks that ended in a deny
	PermissionDenials *prometheus.CounterVec
}

// New registers every collector on reg. Pass prometheus.DefaultRegisterer in
// the server and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "makazi_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),

		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "makazi_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route"}),

		TransferTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "makazi_transfer_transitions_total",
			Help: "Residence transfer transitions by resulting status",
		}, []string{"to"}),

		PermissionDenials: f.NewCounterVec(prometheus.CounterOpts{
			Name: "makazi_permission_denials_total",
			Help: "Denied permission checks by page and action",
		}, []string{"page", "action"}),
	}
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(method, route, status string, d time.Duration) {
	if m != nil {
		m.HTTPRequests.WithLabelValues(method, route, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
	}
}

// IncTransition records a transfer moving into status to.
func (m *Metrics) IncTransition(to string) {
	if m != nil {
		m.TransferTransitions.WithLabelValues(to).Inc()
	}
}

// IncDenial records a denied permission check.
func (m *Metrics) IncDenial(page, action string) {
	if m != nil {
		m.PermissionDenials.WithLabelValues(page, action).Inc()
	}
}
