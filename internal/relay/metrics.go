package relay

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the relay's Prometheus collectors. Each server carries
// its own registry so several relays can coexist in one process (the
// tests do this).
type metrics struct {
	registry *prometheus.Registry

	clients    prometheus.Gauge
	mutations  *prometheus.CounterVec
	rejected   prometheus.Counter
	broadcasts prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rowsync_relay_clients",
			Help: "Number of connected sync clients.",
		}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rowsync_relay_mutations_total",
			Help: "Mutations accepted and applied, by type.",
		}, []string{"type"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rowsync_relay_rejected_total",
			Help: "Inbound payloads rejected as malformed or invalid.",
		}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rowsync_relay_broadcasts_total",
			Help: "Per-client broadcast deliveries attempted.",
		}),
	}
	m.registry.MustRegister(m.clients, m.mutations, m.rejected, m.broadcasts)
	return m
}
