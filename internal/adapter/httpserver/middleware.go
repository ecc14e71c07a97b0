package httpserver

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/muhith-dev/tiktok-live-auction/internal/platform/correlation"
	apperrors "github.com/muhith-dev/tiktok-live-auction/internal/platform/errors"
	"golang.org/x/time/rate"
)

const apiLimiterIdleExpiry = 5 * time.Minute

// correlationMiddleware reuses a well-formed X-Request-ID or mints one, and
// echoes it back so operators can match client reports to log lines.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := correlation.FromHeader(c.Request().Header.Get(correlation.Header))
		if !ok {
			id = correlation.NewID()
		}
		c.Response().Header().Set(correlation.Header, id)

		req := c.Request()
		c.SetRequest(req.WithContext(correlation.WithID(req.Context(), id)))
		return next(c)
	}
}

// perIPRateLimit throttles a route group by client IP using echo's in-memory
// token-bucket store.
func perIPRateLimit(perSecond float64, burst int) echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(perSecond),
			Burst:     burst,
			ExpiresIn: apiLimiterIdleExpiry,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(echo.Context, string, error) error {
			return apperrors.RateLimitedError("rate limit exceeded")
		},
	})
}
