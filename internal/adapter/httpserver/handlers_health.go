package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/muhith-dev/tiktok-live-auction/internal/platform/version"
)

const readinessProbeTimeout = 5 * time.Second

// HealthCheck is a named health check function.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) handleLiveness(c echo.Context) error {
	response := map[string]any{
		"status": "ok",
		"uptime": s.clock.Since(s.startTime).Seconds(),
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

type checkFailure struct {
	name string
	err  error
}

// runHealthChecks runs every check once for all concurrent probes.
func (s *Server) runHealthChecks(ctx context.Context) *checkFailure {
	v, _, _ := s.readiness.Do("ready", func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), readinessProbeTimeout)
		defer cancel()

		for _, hc := range s.healthChecks {
			if err := hc.Check(ctx); err != nil {
				return &checkFailure{name: hc.Name, err: err}, nil
			}
		}
		return (*checkFailure)(nil), nil
	})
	return v.(*checkFailure)
}

func (s *Server) handleReadiness(c echo.Context) error {
	if failure := s.runHealthChecks(c.Request().Context()); failure != nil {
		response := map[string]any{
			"status":       "unhealthy",
			"failed_check": failure.name,
			"error":        failure.err.Error(),
		}
		if err := c.JSON(http.StatusServiceUnavailable, response); err != nil {
			return fmt.Errorf("failed to send JSON response: %w", err)
		}
		return nil
	}

	if err := c.JSON(http.StatusOK, map[string]string{"status": "ready"}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
