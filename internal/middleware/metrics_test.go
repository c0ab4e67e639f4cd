package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"edge-forwarder/internal/metrics"
)

func TestMetricsMiddleware_IncrementsCounter(t *testing.T) {
	m := metrics.New([]string{"/api/"})

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/api/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/test", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	if v := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "200", "/api/")); v != 1 {
		t.Errorf("counter value = %v, want 1", v)
	}
}

func TestMetricsMiddleware_RecordsDuration(t *testing.T) {
	m := metrics.New([]string{"/api/"})

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/api/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/test", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	found := false
	for _, f := range families {
		if f.GetName() == "edge_forwarder_http_request_duration_seconds" {
			for _, metric := range f.GetMetric() {
				if metric.GetHistogram().GetSampleCount() > 0 {
					found = true
				}
			}
		}
	}
	if !found {
		t.Error("expected edge_forwarder_http_request_duration_seconds with at least one sample")
	}
}

func TestMetricsMiddleware_HTTPErrorStatus(t *testing.T) {
	m := metrics.New([]string{"/api/"})

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/api/test", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "too large")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/test", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if v := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "413", "/api/")); v != 1 {
		t.Errorf("requests with status_code=413 = %v, want 1", v)
	}
}

func TestMetricsMiddleware_UnmatchedPath(t *testing.T) {
	m := metrics.New([]string{"/api/"})

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.Any("/*", func(c echo.Context) error {
		return c.NoContent(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/nonexistent", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if v := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "404", "unmatched")); v != 1 {
		t.Errorf("requests with path_prefix=unmatched = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.RequestsInFlight); v != 0 {
		t.Errorf("in-flight = %v, want 0 after request completes", v)
	}
}
