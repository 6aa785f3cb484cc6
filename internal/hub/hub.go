// Package hub is the in-memory connection registry: a mapping from user
// identity to the set of live WebSocket connections for that user.
//
// All map mutations happen on a single goroutine fed by a command channel,
// so register/unregister and iterate-and-send can never interleave
// destructively. The registry holds no persisted state; clients re-establish
// their connections after a restart.
package hub

import (
	"encoding/json"
	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/Kropeks/notify-relay/internal/logging"
	"github.com/Kropeks/notify-relay/internal/protocol"
)

type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type registerCmd struct {
	baseHubCmd
	client *Client
	ackCh  chan struct{}
}

type unregisterCmd struct {
	baseHubCmd
	client *Client
}

type dropCmd struct {
	baseHubCmd
	conn *websocket.Conn
}

type sendCmd struct {
	baseHubCmd
	userID  string
	data    []byte
	replyCh chan int
}

type countAllCmd struct {
	baseHubCmd
	replyCh chan int
}

type countUserCmd struct {
	baseHubCmd
	userID  string
	replyCh chan int
}

type stopCmd struct {
	baseHubCmd
}

type userClients map[*Client]struct{}

// Hub owns the user → connection-set mapping. A user identity appears as a
// key only while its set is non-empty.
type Hub struct {
	cmdCh chan hubCmd
	clock clockwork.Clock
	users map[string]userClients
}

func NewHub(clock clockwork.Clock) *Hub {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	h := &Hub{
		cmdCh: make(chan hubCmd, 256),
		clock: clock,
		users: make(map[string]userClients),
	}
	go h.run()
	return h
}

// Register adds the connection to the user's set, creating the set if
// absent, and installs the close observer: a read pump that unregisters the
// client when the transport closes or errors, whichever side initiated it.
// onClose fires exactly once when the client is torn down.
func (h *Hub) Register(userID string, conn *websocket.Conn, onClose func()) *Client {
	c := newClient(userID, conn, h.clock, onClose)
	ackCh := make(chan struct{})
	h.cmdCh <- registerCmd{client: c, ackCh: ackCh}
	<-ackCh
	return c
}

// Unregister removes the client from its user's set. Removing a client that
// is not present is a no-op.
func (h *Hub) Unregister(c *Client) {
	h.cmdCh <- unregisterCmd{client: c}
}

// Drop removes a raw connection irrespective of its claimed identity,
// scanning all sets. Used when identity bookkeeping for the connection was
// lost. Idempotent.
func (h *Hub) Drop(conn *websocket.Conn) {
	h.cmdCh <- dropCmd{conn: conn}
}

// SendToUser enqueues pre-serialized bytes on every open connection of the
// user and returns the number of successful writes. Unknown users yield 0;
// an absent recipient is an expected case, not an error.
func (h *Hub) SendToUser(userID string, data []byte) int {
	replyCh := make(chan int, 1)
	h.cmdCh <- sendCmd{userID: userID, data: data, replyCh: replyCh}
	return <-replyCh
}

// CountAll returns the total number of live connections across all users.
func (h *Hub) CountAll() int {
	replyCh := make(chan int, 1)
	h.cmdCh <- countAllCmd{replyCh: replyCh}
	return <-replyCh
}

// CountUser returns the number of live connections for one user.
func (h *Hub) CountUser(userID string) int {
	replyCh := make(chan int, 1)
	h.cmdCh <- countUserCmd{userID: userID, replyCh: replyCh}
	return <-replyCh
}

// Stop closes every connection and shuts the hub down.
func (h *Hub) Stop() {
	h.cmdCh <- stopCmd{}
}

func (h *Hub) run() {
	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case registerCmd:
			h.handleRegister(c)
		case unregisterCmd:
			h.handleUnregister(c.client)
		case dropCmd:
			h.handleDrop(c.conn)
		case sendCmd:
			c.replyCh <- h.handleSend(c.userID, c.data)
		case countAllCmd:
			total := 0
			for _, clients := range h.users {
				total += len(clients)
			}
			c.replyCh <- total
		case countUserCmd:
			c.replyCh <- len(h.users[c.userID])
		case stopCmd:
			h.handleStop()
			return
		default:
			slog.Error("Hub: unknown command type", "command", cmd)
		}
	}
}

func (h *Hub) handleRegister(c registerCmd) {
	clients, exists := h.users[c.client.userID]
	if !exists {
		clients = make(userClients)
		h.users[c.client.userID] = clients
	}
	clients[c.client] = struct{}{}

	go c.client.writePump()
	go h.readPump(c.client)

	logging.WithConnection(c.client.id.String()).Debug("Client registered",
		"user_id", c.client.userID,
		"user_connections", len(clients))
	close(c.ackCh)
}

func (h *Hub) handleUnregister(c *Client) {
	clients, exists := h.users[c.userID]
	if !exists {
		return
	}
	if _, exists := clients[c]; !exists {
		return
	}

	c.stop()
	delete(clients, c)

	if len(clients) == 0 {
		delete(h.users, c.userID)
		slog.Debug("Last connection closed for user", "user_id", c.userID)
	} else {
		logging.WithConnection(c.id.String()).Debug("Client unregistered",
			"user_id", c.userID,
			"user_connections", len(clients))
	}
}

func (h *Hub) handleDrop(conn *websocket.Conn) {
	for _, clients := range h.users {
		for c := range clients {
			if c.conn == conn {
				h.handleUnregister(c)
				return
			}
		}
	}
}

func (h *Hub) handleSend(userID string, data []byte) int {
	clients, exists := h.users[userID]
	if !exists {
		return 0
	}

	delivered := 0
	for c := range clients {
		if c.Send(data) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) handleStop() {
	for userID, clients := range h.users {
		for c := range clients {
			c.stop()
		}
		delete(h.users, userID)
	}
}

// readPump is the close observer installed at register time. It also answers
// client keepalive pings; any other or malformed inbound message is ignored
// without closing the connection.
func (h *Hub) readPump(c *Client) {
	defer func() {
		h.cmdCh <- unregisterCmd{client: c}
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg protocol.Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type != protocol.TypePing {
			continue
		}

		pong, err := json.Marshal(protocol.Pong(h.clock.Now().UnixMilli()))
		if err != nil {
			continue
		}
		c.Send(pong)
	}
}
