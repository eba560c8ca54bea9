// Package metrics exposes the service's prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors tracked by the sync and realtime cores.
// Each instance carries its own registry so tests can run independently.
type Metrics struct {
	registry *prometheus.Registry

	SyncRunsTotal     *prometheus.CounterVec
	RowsProcessed     prometheus.Counter
	ActiveConnections prometheus.Gauge
}

// New constructs the collector set on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		registry: registry,
		SyncRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldops",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Sync runs by category and outcome.",
		}, []string{"category", "outcome"}),
		RowsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fieldops",
			Subsystem: "sync",
			Name:      "rows_processed_total",
			Help:      "Source rows reconciled into the store.",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fieldops",
			Subsystem: "realtime",
			Name:      "active_connections",
			Help:      "Currently registered websocket connections.",
		}),
	}
	registry.MustRegister(m.SyncRunsTotal, m.RowsProcessed, m.ActiveConnections)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
