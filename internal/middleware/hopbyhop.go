package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// hopByHopHeaders apply to a single connection and must not be relayed
// by proxies (RFC 7230 §6.1).
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// StripHopByHop returns an Echo middleware that removes hop-by-hop headers,
// including any named in the Connection header, from the inbound request
// before it is forwarded. End-to-end headers are untouched.
func StripHopByHop() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Request().Header
			for _, v := range h.Values("Connection") {
				for _, name := range strings.Split(v, ",") {
					if name = strings.TrimSpace(name); name != "" {
						h.Del(http.CanonicalHeaderKey(name))
					}
				}
			}
			for _, name := range hopByHopHeaders {
				h.Del(name)
			}
			return next(c)
		}
	}
}
