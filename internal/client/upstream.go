// Package client provides the pooled HTTP client used to reach upstream origins.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	cleanhttp "github.com/hashicorp/go-cleanhttp"

	"edge-forwarder/internal/config"
	"edge-forwarder/internal/metrics"
	"edge-forwarder/internal/model"
)

// UpstreamClient sends forwarded requests to upstream origins.
type UpstreamClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient with connection pooling, a
// response-header timeout and a bounded redirect policy.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	transport := cleanhttp.DefaultPooledTransport()
	transport.MaxIdleConns = cfg.Upstream.IdleConnections
	transport.MaxIdleConnsPerHost = cfg.Upstream.IdleConnections
	// Bodies are relayed byte-for-byte, so never negotiate gzip on the caller's behalf.
	transport.DisableCompression = true
	// Bound the wait for response headers only; streamed bodies may run longer.
	transport.ResponseHeaderTimeout = time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second

	maxRedirects := cfg.Upstream.MaxRedirects

	return &UpstreamClient{
		httpClient: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				// net/http sets Referer to the previous hop; only what the
				// caller sent goes upstream.
				if ref, ok := via[0].Header["Referer"]; ok {
					req.Header["Referer"] = ref
				} else {
					delete(req.Header, "Referer")
				}
				return nil
			},
		},
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}
}

// Do executes an HTTP request against the upstream and returns the raw response.
// Redirects are followed; only the final response is returned.
// The caller is responsible for closing the response body.
func (c *UpstreamClient) Do(req *http.Request) (*model.ProxyResponse, error) {
	c.logger.Debug("upstream request",
		"method", req.Method,
		"host", req.URL.Host,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via ProxyResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
	}

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// DoStream executes a request whose body is streamed from body without
// buffering. contentLength is passed through as-is: -1 means unknown
// (chunked), 0 with a nil body means no body. header is copied and sent
// without additions.
// The caller is responsible for closing the returned body.
// The provided context controls the lifetime of the upstream request:
// when the context is canceled (e.g. client disconnects), the upstream
// request is also canceled.
func (c *UpstreamClient) DoStream(ctx context.Context, method, target string, header http.Header, body io.Reader, contentLength int64) (*model.ProxyResponse, error) {
	if body == http.NoBody {
		body = nil
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = header.Clone()
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	// A nil User-Agent keeps net/http from adding its own default.
	if _, ok := req.Header["User-Agent"]; !ok {
		req.Header["User-Agent"] = nil
	}
	if body != nil {
		req.ContentLength = contentLength
	}

	return c.Do(req)
}

// Cause strips the *url.Error wrapper the HTTP client puts around transport
// failures, leaving the underlying message (e.g. "dial tcp ...: connect:
// connection refused").
func Cause(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) && ue.Err != nil {
		return ue.Err
	}
	return err
}
