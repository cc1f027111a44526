// Package observability exposes the gateway's prometheus metrics: request
// counters and durations, streamed transfer bytes and rate-limit denials.
package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's collectors.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	transferBytes   *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
}

// New registers the gateway collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "floodgate_requests_total",
			Help: "Requests handled, by provider, action and status code.",
		}, []string{"provider", "action", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "floodgate_request_duration_seconds",
			Help:    "Request handling time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "action"}),
		transferBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "floodgate_transfer_bytes_total",
			Help: "Bytes streamed through the gateway, by direction.",
		}, []string{"direction"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "floodgate_rate_limited_total",
			Help: "Requests denied by the rate limiter, by credential class.",
		}, []string{"class"}),
	}
	registry.MustRegister(m.requestsTotal, m.requestDuration, m.transferBytes, m.rateLimited)
	return m
}

// ObserveRequest records one handled request.
func (m *Metrics) ObserveRequest(provider, action string, status int, seconds float64) {
	m.requestsTotal.WithLabelValues(provider, action, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(provider, action).Observe(seconds)
}

// AddTransferBytes counts bytes streamed between providers.
func (m *Metrics) AddTransferBytes(direction string, n int64) {
	m.transferBytes.WithLabelValues(direction).Add(float64(n))
}

// ObserveRateLimited counts one denial.
func (m *Metrics) ObserveRateLimited(class string) {
	m.rateLimited.WithLabelValues(class).Inc()
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
