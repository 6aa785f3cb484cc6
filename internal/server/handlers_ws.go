package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Kropeks/notify-relay/internal/logging"
	"github.com/Kropeks/notify-relay/internal/metrics"
	"github.com/Kropeks/notify-relay/internal/protocol"
)

// handleNotificationsSocket drives a connection through
// PendingUpgrade → Authenticating → Connected. The Closed transition is
// owned by the hub's close observer.
//
// Auth failures destroy the raw transport without a status line: connecting
// clients see only a closed socket, never the reason.
func (s *Server) handleNotificationsSocket(c echo.Context) error {
	ip := c.RealIP()

	if ok, reason := s.limits.Acquire(ip); !ok {
		metrics.ConnectionsRejected.WithLabelValues(metrics.RejectLimited).Inc()
		slog.Warn("Connection rejected by limits", "reason", reason, "ip", ip)
		return c.NoContent(http.StatusTooManyRequests)
	}

	rawToken := c.QueryParam("token")
	if rawToken == "" {
		s.limits.Release(ip)
		metrics.ConnectionsRejected.WithLabelValues(metrics.RejectMissingToken).Inc()
		slog.Warn("WebSocket upgrade rejected: missing token", "ip", ip)
		return teardown(c)
	}

	claims, err := s.tokens.Verify(rawToken)
	if err != nil {
		s.limits.Release(ip)
		metrics.ConnectionsRejected.WithLabelValues(metrics.RejectInvalidToken).Inc()
		slog.Warn("WebSocket upgrade rejected: token verification failed", "error", err, "ip", ip)
		return teardown(c)
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrader has already written its response.
		s.limits.Release(ip)
		return fmt.Errorf("failed to upgrade WebSocket: %w", err)
	}

	metrics.ActiveConnections.Inc()
	client := s.hub.Register(claims.UserID, conn, func() {
		metrics.ActiveConnections.Dec()
		s.limits.Release(ip)
	})

	if ack, err := json.Marshal(protocol.Connected(claims.UserID)); err == nil {
		client.Send(ack)
	}

	logging.WithUser(claims.UserID).Info("Client connected",
		"connection_id", client.ID().String(),
		"session_id", claims.SessionID)
	return nil
}

// upgradeGuard tears down WebSocket upgrade attempts on any path other than
// the notifications endpoint, so no partially-negotiated transport leaks
// from a near-miss URL.
func (s *Server) upgradeGuard() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r := c.Request()
			if websocket.IsWebSocketUpgrade(r) && r.URL.Path != notificationsPath {
				slog.Warn("WebSocket upgrade on unexpected path", "path", r.URL.Path)
				return teardown(c)
			}
			return next(c)
		}
	}
}

// teardown destroys the underlying transport without writing a response.
func teardown(c echo.Context) error {
	hijacker, ok := c.Response().Writer.(http.Hijacker)
	if !ok {
		// No raw access to the transport (e.g. recorder in tests);
		// closing the request is the best available approximation.
		return c.NoContent(http.StatusForbidden)
	}

	conn, _, err := hijacker.Hijack()
	if err != nil {
		return c.NoContent(http.StatusForbidden)
	}

	c.Response().Committed = true
	return conn.Close()
}
