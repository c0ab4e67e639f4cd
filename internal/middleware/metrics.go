package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"edge-forwarder/internal/metrics"
)

// MetricsMiddleware returns an Echo middleware that records Prometheus metrics
// for each inbound request, labelled by the route prefix the path matches.
func MetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()

			err := next(c)

			req := c.Request()
			labels := []string{
				metrics.NormalizeMethod(req.Method),
				strconv.Itoa(responseStatus(c, err)),
				m.NormalizePath(req.URL.EscapedPath()),
			}

			m.RequestsTotal.WithLabelValues(labels...).Inc()
			m.RequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())

			return err
		}
	}
}
