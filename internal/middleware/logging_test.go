package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	e := echo.New()
	e.Use(RequestLogger(logger))
	e.Any("/*", func(c echo.Context) error {
		return c.NoContent(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	req.Header.Set(echo.HeaderXRequestID, "req-42")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "request" {
		t.Errorf("msg = %v, want %q", entry["msg"], "request")
	}
	if entry["path"] != "/health" {
		t.Errorf("path = %v, want %q", entry["path"], "/health")
	}
	if entry["status"] != float64(http.StatusNotFound) {
		t.Errorf("status = %v, want %d", entry["status"], http.StatusNotFound)
	}
	if entry["request_id"] != "req-42" {
		t.Errorf("request_id = %v, want %q", entry["request_id"], "req-42")
	}
}

func TestRequestLogger_BackendErrorAtWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	e := echo.New()
	e.Use(RequestLogger(logger))
	e.GET("/api/status", func(c echo.Context) error {
		return c.String(http.StatusBadGateway, "Backend Error: connection refused")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", http.NoBody))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if entry["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", entry["level"])
	}
}

func TestResponseStatus(t *testing.T) {
	tests := []struct {
		name    string
		handler echo.HandlerFunc
		want    int
	}{
		{"written", func(c echo.Context) error { return c.NoContent(http.StatusCreated) }, http.StatusCreated},
		{"http error", func(c echo.Context) error {
			return echo.NewHTTPError(http.StatusTooManyRequests)
		}, http.StatusTooManyRequests},
		{"plain error", func(c echo.Context) error { return errors.New("boom") }, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", http.NoBody), httptest.NewRecorder())
			err := tt.handler(c)
			if got := responseStatus(c, err); got != tt.want {
				t.Errorf("responseStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}
