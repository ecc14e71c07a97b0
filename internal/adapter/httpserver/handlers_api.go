package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	apperrors "github.com/muhith-dev/tiktok-live-auction/internal/platform/errors"
)

const (
	apiRateLimit = 5
	apiBurst     = 10
)

func (s *Server) registerAPIRoutes() {
	api := s.echo.Group("/api", perIPRateLimit(apiRateLimit, apiBurst))
	api.GET("/auction", s.handleAuctionState)
}

func (s *Server) handleAuctionState(c echo.Context) error {
	state, err := s.relay.AuctionState()
	if err != nil {
		return apperrors.UnavailableError("auction state unavailable", err)
	}
	if err := c.JSON(http.StatusOK, state); err != nil {
		return fmt.Errorf("failed to write auction state: %w", err)
	}
	return nil
}
