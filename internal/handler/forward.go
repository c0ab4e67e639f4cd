package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"edge-forwarder/internal/metrics"
	"edge-forwarder/internal/model"
	"edge-forwarder/internal/route"
	"edge-forwarder/internal/service"
)

// backendErrorPrefix starts the plain-text body of every 502 produced when an
// upstream cannot be reached.
const backendErrorPrefix = "Backend Error: "

// ForwardHandler relays every public request through the Forwarder.
type ForwardHandler struct {
	forwarder *service.Forwarder
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewForwardHandler creates a ForwardHandler.
// The metrics parameter is optional; pass nil to disable outcome counting.
func NewForwardHandler(f *service.Forwarder, m *metrics.Metrics, logger *slog.Logger) *ForwardHandler {
	return &ForwardHandler{
		forwarder: f,
		metrics:   m,
		logger:    logger.With("component", "forward_handler"),
	}
}

// Handle forwards the request when its path matches a route and streams the
// upstream response back unchanged. Unmatched paths get an empty 404.
func (h *ForwardHandler) Handle(c echo.Context) error {
	req := c.Request()

	// Dot segments are resolved before matching so "/api/../admin" cannot
	// reach an upstream under the "/api/" route.
	pr := &model.ProxyRequest{
		Ctx:           req.Context(),
		Method:        req.Method,
		Path:          route.ResolveDotSegments(req.URL.EscapedPath()),
		RawQuery:      req.URL.RawQuery,
		ForceQuery:    req.URL.ForceQuery,
		Header:        req.Header,
		Body:          req.Body,
		ContentLength: req.ContentLength,
	}

	resp, err := h.forwarder.Forward(pr)
	if err != nil {
		return h.mapError(c, pr.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	h.outcome(pr.Path, metrics.OutcomeForwarded)

	dst := c.Response().Header()
	for key, vals := range resp.Header {
		for _, v := range vals {
			dst.Add(key, v)
		}
	}

	// A nil Content-Type stops net/http from sniffing one the upstream never sent.
	if _, ok := resp.Header["Content-Type"]; !ok {
		dst["Content-Type"] = nil
	}

	c.Response().WriteHeader(resp.StatusCode)

	// Once the status is written a mid-stream failure (client disconnect,
	// upstream reset) can only truncate the body, so it is logged and dropped.
	var w io.Writer = c.Response()
	if resp.Header.Get(echo.HeaderContentLength) == "" {
		w = flushWriter{c.Response()}
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"path", pr.Path,
		)
	}

	return nil
}

func (h *ForwardHandler) mapError(c echo.Context, path string, err error) error {
	if errors.Is(err, service.ErrNoRoute) {
		h.outcome(path, metrics.OutcomeNotFound)
		return c.NoContent(http.StatusNotFound)
	}

	h.outcome(path, metrics.OutcomeBackendError)

	var be *service.BackendError
	if errors.As(err, &be) {
		h.logger.Warn("backend error",
			"err", be.Err,
			"route", be.Prefix,
			"target", be.Target,
			"method", c.Request().Method,
		)
	} else {
		h.logger.Error("forward error", "err", err, "path", path)
	}

	return c.String(http.StatusBadGateway, backendErrorPrefix+err.Error())
}

func (h *ForwardHandler) outcome(path, outcome string) {
	if h.metrics != nil {
		h.metrics.Outcome(path, outcome)
	}
}

// flushWriter flushes after every write so bodies of unknown length
// (event streams, chunked responses) reach the client as they arrive.
type flushWriter struct {
	rw *echo.Response
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.rw.Write(p)
	if err == nil {
		f.rw.Flush()
	}
	return n, err
}
