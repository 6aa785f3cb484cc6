package server

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Kropeks/notify-relay/internal/apperrors"
	"github.com/Kropeks/notify-relay/internal/metrics"
	"github.com/Kropeks/notify-relay/internal/protocol"
)

// broadcastCommand is the tagged union of accepted broadcast body shapes.
type broadcastCommand interface{ isBroadcastCommand() }

type bulkCommand struct {
	notifications map[string][]json.RawMessage
}

func (bulkCommand) isBroadcastCommand() {}

type singleCommand struct {
	userID       string
	notification json.RawMessage
}

func (singleCommand) isBroadcastCommand() {}

type chatCommand struct {
	conversationID string
	participantIDs []string
	message        json.RawMessage
}

func (chatCommand) isBroadcastCommand() {}

// decodeBroadcast classifies a broadcast body. Priority order matters and is
// part of the contract — a body could satisfy more than one shape: a bulk
// mapping wins over a single pair, which wins over a chat fan-out. A body
// matching none of the shapes yields (nil, nil); the endpoint accepts it
// without dispatching anything.
func decodeBroadcast(body []byte) (broadcastCommand, error) {
	var raw struct {
		Notifications  json.RawMessage `json:"notifications"`
		UserID         string          `json:"userId"`
		Notification   json.RawMessage `json:"notification"`
		Type           string          `json:"type"`
		ConversationID string          `json:"conversationId"`
		ParticipantIDs []string        `json:"participantIds"`
		Message        json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	if isJSONObject(raw.Notifications) {
		var notifications map[string][]json.RawMessage
		if err := json.Unmarshal(raw.Notifications, &notifications); err != nil {
			return nil, err
		}
		return bulkCommand{notifications: notifications}, nil
	}

	if raw.UserID != "" && isJSONValue(raw.Notification) {
		return singleCommand{userID: raw.UserID, notification: raw.Notification}, nil
	}

	if raw.Type == "chat" && raw.ConversationID != "" && len(raw.ParticipantIDs) > 0 {
		return chatCommand{
			conversationID: raw.ConversationID,
			participantIDs: raw.ParticipantIDs,
			message:        raw.Message,
		}, nil
	}

	return nil, nil
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func isJSONValue(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// handleBroadcast accepts trusted server-to-server broadcast submissions.
// Stateless request/response: 204 on success (including recognized-but-empty
// dispatches), 401 on a bad secret, 503 when no secret is configured,
// 500 on read/parse/dispatch failure.
func (s *Server) handleBroadcast(c echo.Context) error {
	if c.Request().Method != http.MethodPost {
		return apperrors.NotFoundError("not found")
	}

	if err := s.checkBroadcastSecret(c); err != nil {
		return err
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		metrics.BroadcastRequests.WithLabelValues(metrics.OutcomeError).Inc()
		return apperrors.InternalError("failed to read broadcast body", err)
	}

	cmd, err := decodeBroadcast(body)
	if err != nil {
		metrics.BroadcastRequests.WithLabelValues(metrics.OutcomeError).Inc()
		return apperrors.InternalError("failed to parse broadcast body", err)
	}

	switch cmd := cmd.(type) {
	case bulkCommand:
		delivered := s.dispatcher.SendBulk(cmd.notifications)
		metrics.BroadcastRequests.WithLabelValues(metrics.OutcomeBulk).Inc()
		slog.Debug("Bulk broadcast dispatched", "users", len(cmd.notifications), "delivered", delivered)
	case singleCommand:
		delivered := s.dispatcher.SendToUser(cmd.userID, cmd.notification)
		metrics.BroadcastRequests.WithLabelValues(metrics.OutcomeSingle).Inc()
		slog.Debug("Broadcast dispatched", "user_id", cmd.userID, "delivered", delivered)
	case chatCommand:
		env := protocol.ChatMessage(cmd.conversationID, cmd.message)
		delivered := s.dispatcher.SendEnvelopeToUsers(cmd.participantIDs, env)
		metrics.BroadcastRequests.WithLabelValues(metrics.OutcomeChat).Inc()
		slog.Debug("Chat broadcast dispatched",
			"conversation_id", cmd.conversationID,
			"participants", len(cmd.participantIDs),
			"delivered", delivered)
	default:
		// Unrecognized shapes are accepted without dispatching anything.
		metrics.BroadcastRequests.WithLabelValues(metrics.OutcomeNoop).Inc()
		slog.Debug("Broadcast body matched no shape, nothing dispatched")
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *Server) checkBroadcastSecret(c echo.Context) error {
	if s.config.BroadcastSecret == "" {
		metrics.BroadcastRequests.WithLabelValues(metrics.OutcomeMisconfigured).Inc()
		return apperrors.ConfigError("broadcast secret is not configured")
	}

	provided := c.Request().Header.Get(broadcastSecretHeader)
	if subtle.ConstantTimeCompare([]byte(provided), []byte(s.config.BroadcastSecret)) != 1 {
		metrics.BroadcastRequests.WithLabelValues(metrics.OutcomeUnauthorized).Inc()
		return apperrors.AuthError("invalid broadcast secret")
	}
	return nil
}
