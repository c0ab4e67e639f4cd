// Package server opens the TCP listeners the public and admin Echo servers
// serve on.
package server

import (
	"fmt"
	"net"
	"time"

	proxyproto "github.com/pires/go-proxyproto"
)

// proxyHeaderTimeout bounds how long an accepted connection may take to send
// its PROXY protocol header.
const proxyHeaderTimeout = 10 * time.Second

// Listen binds addr. With proxyProtocol set, accepted connections may carry a
// PROXY protocol v1/v2 header whose source address then becomes the
// connection's RemoteAddr; connections without one are served unchanged.
func Listen(addr string, proxyProtocol bool) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	if !proxyProtocol {
		return ln, nil
	}
	return &proxyproto.Listener{
		Listener:          ln,
		ReadHeaderTimeout: proxyHeaderTimeout,
	}, nil
}
