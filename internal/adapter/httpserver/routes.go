package httpserver

import (
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/muhith-dev/tiktok-live-auction/internal/adapter/metrics"
	apperrors "github.com/muhith-dev/tiktok-live-auction/internal/platform/errors"
)

func (s *Server) registerRoutes() {
	s.echo.Use(correlationMiddleware)
	s.echo.Use(requestLogger())
	s.echo.Use(middleware.Recover())
	s.echo.Use(s.httpMetrics.Middleware())
	s.echo.Use(apperrors.Middleware(s.httpMetrics.ErrorsTotal))
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "",
		ContentTypeNosniff: "nosniff",
		HSTSMaxAge:         63072000, // 2 years; only sent over HTTPS
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))

	s.echo.GET("/ws", s.handleWebSocket)
	s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler(s.registry)))

	s.registerHealthRoutes()
	s.registerAPIRoutes()

	s.echo.Static("/", s.config.StaticDir)
}

// requestLogger logs one line per request. Probes and scrapes are skipped;
// /ws logs its own connect and disconnect lines.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		Skipper: func(c echo.Context) bool {
			p := c.Path()
			return p == "/metrics" || p == "/ws" || strings.HasPrefix(p, "/health/")
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			switch {
			case v.Status >= 500:
				level = slog.LevelError
			case v.Status >= 400:
				level = slog.LevelWarn
			}
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.Any("error", v.Error))
			}
			slog.LogAttrs(c.Request().Context(), level, "Request", attrs...)
			return nil
		},
	})
}
