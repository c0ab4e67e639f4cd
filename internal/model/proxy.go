// Package model defines shared types for the forwarder.
package model

import (
	"context"
	"io"
	"net/http"
)

// ProxyRequest represents an inbound request to be forwarded upstream.
// Path is the escaped path with dot segments resolved and RawQuery the
// query string without '?' exactly as received.
type ProxyRequest struct {
	Ctx           context.Context
	Method        string
	Path          string
	RawQuery      string
	ForceQuery    bool
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64
}

// ProxyResponse represents the upstream response to be streamed back.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
