package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts registry activity for the /metrics endpoint.
type Metrics struct {
	Connections  prometheus.Gauge
	Broadcasts   prometheus.Counter
	SendFailures prometheus.Counter
	TypingEvents prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "timetracker",
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Currently registered WebSocket connections.",
		}),
		Broadcasts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "timetracker",
			Subsystem: "realtime",
			Name:      "broadcasts_total",
			Help:      "Envelopes fanned out to organization rooms.",
		}),
		SendFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "timetracker",
			Subsystem: "realtime",
			Name:      "send_failures_total",
			Help:      "Envelope deliveries dropped due to dead or saturated connections.",
		}),
		TypingEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "timetracker",
			Subsystem: "realtime",
			Name:      "typing_events_total",
			Help:      "Typing indicator updates processed.",
		}),
	}
}
