package metrics

import "github.com/prometheus/client_golang/prometheus"

// UpstreamMetrics holds Prometheus metrics for live-platform sessions.
type UpstreamMetrics struct {
	ActiveSessions  prometheus.Gauge
	ConnectAttempts *prometheus.CounterVec
	Events          *prometheus.CounterVec
}

// NewUpstreamMetrics creates and registers upstream metrics on the given registry.
func NewUpstreamMetrics(reg prometheus.Registerer) *UpstreamMetrics {
	m := &UpstreamMetrics{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "active_sessions",
			Help:      "Number of registered upstream sessions.",
		}),
		ConnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "connect_attempts_total",
			Help:      "Total number of upstream connect attempts, by result.",
		}, []string{"result"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "events_total",
			Help:      "Total number of upstream events received, by event type.",
		}, []string{"event"}),
	}

	reg.MustRegister(m.ActiveSessions, m.ConnectAttempts, m.Events)
	return m
}
