package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Kropeks/notify-relay/internal/version"
)

func (s *Server) handleLiveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":      "ok",
		"uptime":      s.clock.Since(s.startTime).Seconds(),
		"connections": s.hub.CountAll(),
	})
}

// handleReadiness reports ready as soon as the hub answers: the relay has no
// external backends, so liveness and readiness only differ in intent.
func (s *Server) handleReadiness(c echo.Context) error {
	_ = s.hub.CountAll()
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, version.Get())
}
