package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exported on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	Requests     *prometheus.CounterVec
	RecordWrites *prometheus.CounterVec
	Imports      *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance backed by its own registry so tests
// can run multiple servers without collector collisions.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coehub_http_requests_total",
				Help: "Total number of HTTP requests served",
			},
			[]string{"method", "route", "status"},
		),
		RecordWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coehub_record_writes_total",
				Help: "Total record mutations by resource and operation",
			},
			[]string{"resource", "operation"},
		),
		Imports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coehub_import_rows_total",
				Help: "Total bulk-imported rows by resource and outcome",
			},
			[]string{"resource", "outcome"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
