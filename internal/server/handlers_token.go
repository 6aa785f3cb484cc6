package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Kropeks/notify-relay/internal/apperrors"
	"github.com/Kropeks/notify-relay/internal/token"
)

type issueTokenRequest struct {
	UserID     string `json:"userId"`
	SessionID  string `json:"sessionId"`
	TTLSeconds int    `json:"ttlSeconds"`
}

type issueTokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

// handleIssueToken mints a connection token for an already-authenticated
// user. The caller is a trusted internal service (the platform backend that
// authenticated the user), so the route is guarded by the same shared secret
// as broadcast submission.
func (s *Server) handleIssueToken(c echo.Context) error {
	if c.Request().Method != http.MethodPost {
		return apperrors.NotFoundError("not found")
	}

	if err := s.checkBroadcastSecret(c); err != nil {
		return err
	}

	var req issueTokenRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid token request body")
	}
	if req.UserID == "" {
		return apperrors.ValidationError("userId is required")
	}

	signed, err := s.tokens.Issue(req.UserID, req.SessionID, time.Duration(req.TTLSeconds)*time.Second)
	if errors.Is(err, token.ErrNotConfigured) {
		return apperrors.ConfigError("token signing secret is not configured")
	}
	if err != nil {
		return apperrors.InternalError("failed to issue token", err)
	}

	claims, err := s.tokens.Verify(signed)
	if err != nil {
		return apperrors.InternalError("failed to read back issued token", err)
	}

	return c.JSON(http.StatusOK, issueTokenResponse{
		Token:     signed,
		ExpiresAt: claims.ExpiresAt.UnixMilli(),
	})
}
