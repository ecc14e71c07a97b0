package metrics

import "github.com/prometheus/client_golang/prometheus"

// GiftMetrics holds Prometheus metrics for the gift reconciliation pipeline.
type GiftMetrics struct {
	EventsProcessed *prometheus.CounterVec
	DeltaUnits      prometheus.Counter
	ActiveStreaks   prometheus.Gauge
	SweptEntries    *prometheus.CounterVec
	ChatMessages    *prometheus.CounterVec
}

// NewGiftMetrics creates and registers gift pipeline metrics on the given registry.
func NewGiftMetrics(reg prometheus.Registerer) *GiftMetrics {
	m := &GiftMetrics{
		EventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gift",
			Name:      "events_processed_total",
			Help:      "Total number of raw gift events, by reconciliation outcome.",
		}, []string{"outcome"}),
		DeltaUnits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gift",
			Name:      "delta_units_total",
			Help:      "Total number of gift units broadcast.",
		}),
		ActiveStreaks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gift",
			Name:      "active_streaks",
			Help:      "Number of tracked gift streaks across sessions after the last sweep.",
		}),
		SweptEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gift",
			Name:      "swept_entries_total",
			Help:      "Total number of expired entries removed by the sweeper, by kind.",
		}, []string{"kind"}),
		ChatMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "messages_total",
			Help:      "Total number of upstream chat messages, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.EventsProcessed, m.DeltaUnits, m.ActiveStreaks, m.SweptEntries, m.ChatMessages)
	return m
}
