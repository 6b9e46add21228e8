package http

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// httpMetrics are scraped from /metrics next to the runtime collectors.
type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	size     *prometheus.HistogramVec
	inflight prometheus.Gauge
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	labels := []string{"method", "route", "status"}
	m := &httpMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "devaudit",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route template and status.",
		}, labels),
		// Section regeneration waits on the generator, hence the long tail.
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "devaudit",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method, route template and status.",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 15, 60, 240, 480},
		}, labels),
		size: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "devaudit",
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "Response body size by method, route template and status.",
			Buckets:   prometheus.ExponentialBuckets(128, 4, 8),
		}, labels),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "devaudit",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Requests currently being served.",
		}),
	}
	reg.MustRegister(m.requests, m.duration, m.size, m.inflight)
	return m
}

func (m *httpMetrics) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.inflight.Inc()
			defer m.inflight.Dec()
			start := time.Now()

			if err := next(c); err != nil {
				// The error handler writes the status we record.
				c.Error(err)
			}

			res := c.Response()
			lv := prometheus.Labels{
				"method": c.Request().Method,
				"route":  routeLabel(c.Path()),
				"status": strconv.Itoa(res.Status),
			}
			m.requests.With(lv).Inc()
			m.duration.With(lv).Observe(time.Since(start).Seconds())
			m.size.With(lv).Observe(float64(res.Size))
			return nil
		}
	}
}

// routeLabel uses the route template so record ids never become label
// values.
func routeLabel(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}
