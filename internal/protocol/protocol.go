// Package protocol defines the envelope format exchanged with clients.
// Every server-to-client message is a JSON object {type, payload}; the only
// meaningful client-to-server message is {type: "ping"}.
package protocol

import "encoding/json"

const (
	TypeConnected     = "connected"
	TypePing          = "ping"
	TypePong          = "pong"
	TypeNotification  = "notification"
	TypeNotifications = "notifications"
	TypeChatMessage   = "chat-message"
)

// Envelope is the wire format for every message sent to a client.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Inbound is the shape parsed from client messages. Unknown fields and
// unknown types are ignored by the reader.
type Inbound struct {
	Type string `json:"type"`
}

// Connected acknowledges a successful registration.
func Connected(userID string) Envelope {
	return Envelope{Type: TypeConnected, Payload: map[string]string{"userId": userID}}
}

// Pong answers a client keepalive ping with a server timestamp (epoch ms).
func Pong(epochMillis int64) Envelope {
	return Envelope{Type: TypePong, Payload: epochMillis}
}

// Notification wraps a single notification payload.
func Notification(payload any) Envelope {
	return Envelope{Type: TypeNotification, Payload: payload}
}

// Notifications wraps a batch of notification payloads.
func Notifications(payloads []json.RawMessage) Envelope {
	return Envelope{Type: TypeNotifications, Payload: payloads}
}

// ChatMessage wraps a chat message fanned out to conversation participants.
func ChatMessage(conversationID string, message json.RawMessage) Envelope {
	return Envelope{Type: TypeChatMessage, Payload: map[string]any{
		"conversationId": conversationID,
		"message":        message,
	}}
}
