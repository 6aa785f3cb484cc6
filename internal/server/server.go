// Package server exposes the relay's two ingress surfaces: the WebSocket
// upgrade endpoint for clients and the trusted HTTP endpoints for internal
// services.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/Kropeks/notify-relay/internal/broadcast"
	"github.com/Kropeks/notify-relay/internal/config"
	"github.com/Kropeks/notify-relay/internal/hub"
	"github.com/Kropeks/notify-relay/internal/token"
)

const (
	notificationsPath = "/ws/notifications"
	broadcastPath     = "/internal/broadcast"
	chatBroadcastPath = "/internal/chat/broadcast"
	tokenPath         = "/internal/token"
)

// broadcastSecretHeader carries the shared secret for trusted submissions.
const broadcastSecretHeader = "X-Relay-Secret"

type Server struct {
	echo       *echo.Echo
	config     *config.Config
	hub        *hub.Hub
	dispatcher *broadcast.Dispatcher
	tokens     *token.Codec
	limits     *ConnectionLimits
	upgrader   websocket.Upgrader
	clock      clockwork.Clock
	startTime  time.Time
}

func NewServer(cfg *config.Config, h *hub.Hub, d *broadcast.Dispatcher, codec *token.Codec, clock clockwork.Clock) *Server {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:       e,
		config:     cfg,
		hub:        h,
		dispatcher: d,
		tokens:     codec,
		limits: NewConnectionLimits(
			cfg.MaxConnections,
			cfg.MaxConnectionsPerIP,
			cfg.ConnectionRate,
			cfg.ConnectionBurst,
		),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     NewCheckOrigin(cfg.AppURL, cfg.AppEnv == "development"),
		},
		clock:     clock,
		startTime: clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Host, s.config.Port)
	slog.Info("Starting server", "addr", addr)
	if err := s.echo.Start(addr); err != nil {
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
