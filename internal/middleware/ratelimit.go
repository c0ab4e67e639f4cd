package middleware

import (
	"math"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// RateLimiter returns a per-client-IP token bucket limiter allowing rps
// requests per second with a burst of ceil(rps). Idle buckets expire after
// three minutes.
func RateLimiter(rps float64) echo.MiddlewareFunc {
	store := echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(rps),
		Burst:     int(math.Ceil(rps)),
		ExpiresIn: 3 * time.Minute,
	})
	return echomw.RateLimiter(store)
}
