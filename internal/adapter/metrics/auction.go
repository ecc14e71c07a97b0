package metrics

import "github.com/prometheus/client_golang/prometheus"

// AuctionMetrics holds Prometheus metrics for the auction state machine.
type AuctionMetrics struct {
	Transitions *prometheus.CounterVec
	Active      prometheus.Gauge
}

// NewAuctionMetrics creates and registers auction metrics on the given registry.
func NewAuctionMetrics(reg prometheus.Registerer) *AuctionMetrics {
	m := &AuctionMetrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auction",
			Name:      "transitions_total",
			Help:      "Total number of auction transitions, by kind.",
		}, []string{"kind"}),
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "auction",
			Name:      "active",
			Help:      "1 while an auction round is active.",
		}),
	}

	reg.MustRegister(m.Transitions, m.Active)
	return m
}
