// Package httpserver exposes the relay over HTTP: the /ws control and widget
// socket, static assets, health and version probes, metrics, and a read-only
// auction API.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/muhith-dev/tiktok-live-auction/internal/adapter/metrics"
	"github.com/muhith-dev/tiktok-live-auction/internal/auction"
	"github.com/muhith-dev/tiktok-live-auction/internal/platform/config"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

type relay interface {
	HandleMessage(ctx context.Context, connID uuid.UUID, payload []byte)
	ClientClosed(connID uuid.UUID)
	AuctionState() (auction.State, error)
}

type connectionRegistry interface {
	Register(connID uuid.UUID, conn *websocket.Conn) error
	Unregister(connID uuid.UUID)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	clock  clockwork.Clock

	relay       relay
	connections connectionRegistry
	limits      *connectionLimits
	upgrader    websocket.Upgrader
	wsMetrics   *metrics.WebSocketMetrics

	registry     *prometheus.Registry
	httpMetrics  *metrics.HTTPMetrics
	healthChecks []HealthCheck
	readiness    singleflight.Group
	startTime    time.Time
}

// NewServer builds the HTTP surface. HTTP metrics are registered on reg,
// which is also what /metrics serves. wsMetrics may be nil.
func NewServer(cfg *config.Config, clock clockwork.Clock, relay relay, connections connectionRegistry, reg *prometheus.Registry, wsMetrics *metrics.WebSocketMetrics, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:        e,
		config:      cfg,
		clock:       clock,
		relay:       relay,
		connections: connections,
		limits:      newConnectionLimits(clock, cfg.MaxConnectionsPerIP, cfg.WSConnectRate, cfg.WSConnectBurst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     NewCheckOrigin(cfg.AppURL, cfg.IsDevelopment()),
		},
		wsMetrics:    wsMetrics,
		registry:     reg,
		httpMetrics:  metrics.NewHTTPMetrics(reg),
		healthChecks: healthChecks,
		startTime:    clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
