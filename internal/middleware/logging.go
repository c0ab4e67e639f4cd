// Package middleware provides Echo middleware for logging, metrics and
// request hygiene on the public listener.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestLogger returns an Echo middleware that logs one line per request.
// Responses with a 5xx status are logged at warn level.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			status := responseStatus(c, err)

			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}

			logger.LogAttrs(req.Context(), level, "request",
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("status", status),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.String("request_id", requestID(c)),
				slog.String("remote_ip", c.RealIP()),
				slog.Int64("bytes_in", req.ContentLength),
				slog.Int64("bytes_out", c.Response().Size),
			)

			return err
		}
	}
}

// responseStatus resolves the status the client will see. When a handler
// returns an *echo.HTTPError the status is not written yet; Echo's central
// error handler writes it after the middleware chain unwinds.
func responseStatus(c echo.Context, err error) int {
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he.Code
		}
		if !c.Response().Committed {
			return http.StatusInternalServerError
		}
	}
	return c.Response().Status
}

// requestID prefers an ID supplied by the caller or an outer load balancer
// over one set on the response.
func requestID(c echo.Context) string {
	if id := c.Request().Header.Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	return c.Response().Header().Get(echo.HeaderXRequestID)
}
