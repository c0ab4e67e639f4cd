package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRateLimiter(t *testing.T) {
	e := echo.New()

	// 1 request per second, burst of 1: a quick second request is rejected.
	e.Use(RateLimiter(1))
	e.GET("/api/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/test", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want %d", rec.Code, http.StatusOK)
	}

	got429 := false
	for range 10 {
		req = httptest.NewRequest(http.MethodGet, "/api/test", http.NoBody)
		rec = httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			got429 = true
			break
		}
	}
	if !got429 {
		t.Error("expected at least one 429 response after burst, got none")
	}
}

func TestRateLimiter_PerClientIP(t *testing.T) {
	e := echo.New()
	e.Use(RateLimiter(1))
	e.GET("/api/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for _, ip := range []string{"192.0.2.1:1000", "192.0.2.2:1000", "192.0.2.3:1000"} {
		req := httptest.NewRequest(http.MethodGet, "/api/test", http.NoBody)
		req.RemoteAddr = ip
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("first request from %s: status = %d, want %d", ip, rec.Code, http.StatusOK)
		}
	}
}
