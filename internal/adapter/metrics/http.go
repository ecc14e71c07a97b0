package metrics

import (
	"errors"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics tracks the short-lived HTTP endpoints. The /ws upgrade is
// covered by WebSocketMetrics instead.
type HTTPMetrics struct {
	Requests    *prometheus.CounterVec
	Latency     *prometheus.HistogramVec
	InFlight    prometheus.Gauge
	ErrorsTotal *prometheus.CounterVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	labels := []string{"method", "path", "status"}
	m := &HTTPMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, by route pattern and status.",
		}, labels),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency, by route pattern and status.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 1, 5},
		}, labels),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "HTTP requests being served right now.",
		}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "Handler errors, by error type.",
		}, []string{"type"}),
	}

	reg.MustRegister(m.Requests, m.Latency, m.InFlight, m.ErrorsTotal)
	return m
}

func untracked(path string) bool {
	return path == "/ws" || path == "/metrics" || strings.HasPrefix(path, "/health/")
}

// Middleware records every request except probes, scrapes and /ws.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Path()
			if untracked(path) {
				return next(c)
			}

			m.InFlight.Inc()
			timer := prometheus.NewTimer(nil)
			err := next(c)
			elapsed := timer.ObserveDuration()
			m.InFlight.Dec()

			status := c.Response().Status
			var httpErr *echo.HTTPError
			if !c.Response().Committed && errors.As(err, &httpErr) {
				status = httpErr.Code
			}

			lv := []string{c.Request().Method, path, strconv.Itoa(status)}
			m.Requests.WithLabelValues(lv...).Inc()
			m.Latency.WithLabelValues(lv...).Observe(elapsed.Seconds())
			return err
		}
	}
}
