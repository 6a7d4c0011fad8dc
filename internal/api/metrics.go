package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus collectors on a private registry so
// tests can run multiple servers without duplicate-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	Joins           prometheus.Counter
	Orders          prometheus.Counter
	Trades          prometheus.Counter
	Cancellations   prometheus.Counter
	RoundsStarted   prometheus.Counter
	RoundsCompleted prometheus.Counter
	Rejections      *prometheus.CounterVec
	PlayersSeated   prometheus.Gauge
}

// NewMetrics creates and registers all collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		Joins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "figgie_joins_total",
			Help: "Players seated.",
		}),
		Orders: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "figgie_orders_total",
			Help: "Orders accepted (resting or executed).",
		}),
		Trades: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "figgie_trades_total",
			Help: "Trades executed.",
		}),
		Cancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "figgie_cancellations_total",
			Help: "Orders cancelled.",
		}),
		RoundsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "figgie_rounds_started_total",
			Help: "Rounds started.",
		}),
		RoundsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "figgie_rounds_completed_total",
			Help: "Rounds completed.",
		}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "figgie_rejections_total",
			Help: "Rejected requests by kind.",
		}, []string{"kind"}),
		PlayersSeated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "figgie_players_seated",
			Help: "Players currently seated at the table.",
		}),
	}

	registry.MustRegister(
		m.Joins, m.Orders, m.Trades, m.Cancellations,
		m.RoundsStarted, m.RoundsCompleted, m.Rejections, m.PlayersSeated,
	)
	return m
}

// Handler returns the /metrics endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
