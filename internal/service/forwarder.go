// Package service implements the core forwarding logic: route selection,
// target rewriting, header scrubbing and the single upstream attempt.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"edge-forwarder/internal/client"
	"edge-forwarder/internal/config"
	"edge-forwarder/internal/model"
	"edge-forwarder/internal/route"
)

// ErrNoRoute is returned when no route prefix matches the request path.
// It is a normal routing outcome, not a failure.
var ErrNoRoute = errors.New("no route matches path")

// BackendError reports a transport-level failure reaching the upstream:
// DNS, refused connection, TLS, timeout or cancellation. Non-2xx upstream
// responses are not BackendErrors.
type BackendError struct {
	Prefix string
	Target string
	Err    error
}

// Error returns the underlying transport failure message.
func (e *BackendError) Error() string {
	return client.Cause(e.Err).Error()
}

func (e *BackendError) Unwrap() error { return e.Err }

// Forwarder relays requests matching a route to that route's upstream origin.
// It holds no per-request state and is safe for concurrent use.
type Forwarder struct {
	client *client.UpstreamClient
	routes *route.Table
	strip  []string
	logger *slog.Logger
}

// NewForwarder creates a Forwarder from the configured routes and strip list.
func NewForwarder(c *client.UpstreamClient, routes *route.Table, cfg *config.Config, logger *slog.Logger) *Forwarder {
	strip := make([]string, 0, len(cfg.Forward.StripHeaders))
	for _, h := range cfg.Forward.StripHeaders {
		strip = append(strip, http.CanonicalHeaderKey(h))
	}
	return &Forwarder{
		client: c,
		routes: routes,
		strip:  strip,
		logger: logger.With("component", "forwarder"),
	}
}

// Forward sends pr to the upstream of the first matching route and returns
// the upstream response untouched. Exactly one attempt is made.
// The caller is responsible for closing the response body.
//
// It returns ErrNoRoute when no prefix matches, and a *BackendError when the
// upstream cannot be reached.
func (f *Forwarder) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	rule, ok := f.routes.Match(pr.Path)
	if !ok {
		return nil, ErrNoRoute
	}

	target := rule.Target(pr.Path, pr.RawQuery, pr.ForceQuery)
	header := f.scrubHeaders(pr.Header)

	f.logger.Debug("forwarding request",
		"method", pr.Method,
		"path", pr.Path,
		"route", rule.Prefix,
	)

	resp, err := f.client.DoStream(pr.Ctx, pr.Method, target, header, pr.Body, pr.ContentLength)
	if err != nil {
		return nil, &BackendError{
			Prefix: rule.Prefix,
			Target: target,
			Err:    fmt.Errorf("forward to upstream: %w", err),
		}
	}
	return resp, nil
}

// scrubHeaders copies src without the configured strip list, matched
// case-insensitively. All other headers pass through unchanged.
func (f *Forwarder) scrubHeaders(src http.Header) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}
	for key := range dst {
		for _, name := range f.strip {
			if strings.EqualFold(key, name) {
				delete(dst, key)
				break
			}
		}
	}
	return dst
}
