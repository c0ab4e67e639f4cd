package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"edge-forwarder/internal/route"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints on the admin listener.
type HealthHandler struct {
	routes  *route.Table
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(routes *route.Table, v Version) *HealthHandler {
	return &HealthHandler{routes: routes, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

type routeStatus struct {
	Prefix         string `json:"prefix"`
	UpstreamOrigin string `json:"upstream_origin"`
}

type statusResponse struct {
	Status  string        `json:"status"`
	Version string        `json:"version"`
	Routes  []routeStatus `json:"routes"`
}

// Status returns the build version and the route table in match order.
func (h *HealthHandler) Status(c echo.Context) error {
	rules := h.routes.Rules()
	routes := make([]routeStatus, 0, len(rules))
	for _, r := range rules {
		routes = append(routes, routeStatus{Prefix: r.Prefix, UpstreamOrigin: r.Origin.String()})
	}
	return c.JSON(http.StatusOK, statusResponse{
		Status:  "ok",
		Version: string(h.version),
		Routes:  routes,
	})
}
