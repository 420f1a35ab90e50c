package relay

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	connectionsTotal  prometheus.Counter
	connectionsActive prometheus.Gauge
	broadcastsTotal   prometheus.Counter
	deliveriesTotal   prometheus.Counter
	droppedTotal      *prometheus.CounterVec
	slowDisconnects   prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_connections_total",
			Help: "Accepted websocket connections since start.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_connections_active",
			Help: "Currently connected peers.",
		}),
		broadcastsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_broadcasts_total",
			Help: "Envelopes accepted and fanned out.",
		}),
		deliveriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Envelope copies enqueued to peers.",
		}),
		droppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_envelopes_dropped_total",
			Help: "Inbound envelopes dropped before fan-out.",
		}, []string{"reason"}),
		slowDisconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_slow_consumer_disconnects_total",
			Help: "Peers dropped because their outbound queue overflowed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.connectionsTotal,
			m.connectionsActive,
			m.broadcastsTotal,
			m.deliveriesTotal,
			m.droppedTotal,
			m.slowDisconnects,
		)
	}
	return m
}
