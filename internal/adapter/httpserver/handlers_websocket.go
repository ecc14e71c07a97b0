package httpserver

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/muhith-dev/tiktok-live-auction/internal/platform/correlation"
	apperrors "github.com/muhith-dev/tiktok-live-auction/internal/platform/errors"
)

const maxMessageSize = 64 * 1024

// handleWebSocket serves both control panels and display widgets; every
// connection may send commands and receives every broadcast.
func (s *Server) handleWebSocket(c echo.Context) error {
	ip := c.RealIP()
	if ok, reason := s.limits.Acquire(ip); !ok {
		if s.wsMetrics != nil {
			s.wsMetrics.RejectedConnects.WithLabelValues(string(reason)).Inc()
		}
		slog.WarnContext(c.Request().Context(), "WebSocket connection limited", "remote_addr", ip, "reason", reason)
		return apperrors.RateLimitedError("too many connections")
	}
	defer s.limits.Release(ip)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		slog.DebugContext(c.Request().Context(), "WebSocket upgrade failed", "error", err)
		return nil
	}

	connID := uuid.New()
	if err := s.connections.Register(connID, conn); err != nil {
		slog.WarnContext(c.Request().Context(), "WebSocket connection rejected", "conn_id", connID.String(), "error", err)
		return nil
	}

	// Commands may still be queued on the relay after the handler returns.
	ctx := correlation.WithConnID(context.WithoutCancel(c.Request().Context()), connID)
	slog.InfoContext(ctx, "Client connected", "remote_addr", ip)

	defer func() {
		s.connections.Unregister(connID)
		s.relay.ClientClosed(connID)
		slog.InfoContext(ctx, "Client disconnected")
	}()

	conn.SetReadLimit(maxMessageSize)
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				slog.DebugContext(ctx, "WebSocket read error", "error", err)
			}
			return nil
		}
		s.relay.HandleMessage(correlation.WithID(ctx, correlation.NewID()), connID, payload)
	}
}
