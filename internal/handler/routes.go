package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"edge-forwarder/internal/config"
	"edge-forwarder/internal/metrics"
)

// RegisterRoutes sends every public request, whatever its method or path,
// to the forward handler; route matching happens there.
// Any only covers Echo's known methods, so the not-found route picks up
// extension methods (PURGE, MKCOL, ...) that would otherwise get a 405.
func RegisterRoutes(e *echo.Echo, fwd *ForwardHandler) {
	e.Any("/", fwd.Handle)
	e.Any("/*", fwd.Handle)
	e.RouteNotFound("/*", fwd.Handle)
}

// RegisterAdminRoutes wires health, status and metrics onto the admin Echo instance.
func RegisterAdminRoutes(e *echo.Echo, health *HealthHandler, m *metrics.Metrics, cfg *config.Config) {
	e.GET("/healthz", health.Healthz)
	e.GET("/status", health.Status)

	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}
}
