// Package broadcast turns notification payloads into client envelopes and
// fans them out over the connection registry.
//
// Delivery is best-effort and synchronous with respect to currently known
// sockets: no retry, no queuing, no acknowledgment tracking. A disconnected
// or absent user simply receives nothing.
package broadcast

import (
	"encoding/json"
	"log/slog"

	"github.com/Kropeks/notify-relay/internal/hub"
	"github.com/Kropeks/notify-relay/internal/metrics"
	"github.com/Kropeks/notify-relay/internal/protocol"
)

// Dispatcher resolves recipients in the hub and pushes serialized envelopes.
type Dispatcher struct {
	hub *hub.Hub
}

func NewDispatcher(h *hub.Hub) *Dispatcher {
	return &Dispatcher{hub: h}
}

// SendToUser wraps the notification in a {type: "notification"} envelope,
// serializes it once and writes it to every open connection of the user.
// Returns the number of successful writes; 0 for unknown users.
func (d *Dispatcher) SendToUser(userID string, notification any) int {
	return d.SendEnvelope(userID, protocol.Notification(notification))
}

// SendToUsers applies SendToUser to each id and sums the counts. Duplicate
// ids are each processed; de-duplication is the caller's concern.
func (d *Dispatcher) SendToUsers(userIDs []string, notification any) int {
	data, ok := d.marshal(protocol.Notification(notification))
	if !ok {
		return 0
	}
	return d.deliverToUsers(userIDs, data)
}

// SendBulk delivers, per user, the user's payload list wrapped in a
// {type: "notifications"} envelope. Users with empty lists are skipped
// without side effects.
func (d *Dispatcher) SendBulk(notifications map[string][]json.RawMessage) int {
	total := 0
	for userID, payloads := range notifications {
		if len(payloads) == 0 {
			continue
		}
		total += d.SendEnvelope(userID, protocol.Notifications(payloads))
	}
	return total
}

// SendEnvelope delivers an arbitrary caller-supplied envelope to one user.
func (d *Dispatcher) SendEnvelope(userID string, env protocol.Envelope) int {
	data, ok := d.marshal(env)
	if !ok {
		return 0
	}
	return d.deliver(userID, data)
}

// SendEnvelopeToUsers delivers one shared envelope to a fixed recipient list,
// e.g. a chat message fanned out to all conversation participants.
func (d *Dispatcher) SendEnvelopeToUsers(userIDs []string, env protocol.Envelope) int {
	data, ok := d.marshal(env)
	if !ok {
		return 0
	}
	return d.deliverToUsers(userIDs, data)
}

func (d *Dispatcher) marshal(env protocol.Envelope) ([]byte, bool) {
	data, err := json.Marshal(env)
	if err != nil {
		slog.Error("Failed to marshal envelope", "type", env.Type, "error", err)
		return nil, false
	}
	return data, true
}

func (d *Dispatcher) deliver(userID string, data []byte) int {
	delivered := d.hub.SendToUser(userID, data)
	if delivered > 0 {
		metrics.MessagesDelivered.Add(float64(delivered))
	}
	return delivered
}

func (d *Dispatcher) deliverToUsers(userIDs []string, data []byte) int {
	total := 0
	for _, userID := range userIDs {
		total += d.deliver(userID, data)
	}
	return total
}
