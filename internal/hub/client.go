package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	writeDeadline  = 5 * time.Second
	pingInterval   = 30 * time.Second
	sendBufferSize = 16
)

// Client is one live connection bound to a single authenticated user for its
// lifetime. Writes go through a buffered channel drained by a dedicated
// write pump, so per-connection message order follows enqueue order.
type Client struct {
	id       uuid.UUID
	userID   string
	conn     *websocket.Conn
	clock    clockwork.Clock
	sendCh   chan []byte
	done     chan struct{}
	stopOnce sync.Once
	onClose  func()
}

func newClient(userID string, conn *websocket.Conn, clock clockwork.Clock, onClose func()) *Client {
	return &Client{
		id:      uuid.New(),
		userID:  userID,
		conn:    conn,
		clock:   clock,
		sendCh:  make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

func (c *Client) ID() uuid.UUID { return c.id }

func (c *Client) UserID() string { return c.userID }

// Send enqueues a pre-serialized message. It never blocks: a closed client
// or a full buffer returns false and the message is dropped. Delivery is
// best-effort; a client that falls behind keeps its connection.
func (c *Client) Send(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.sendCh <- data:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

func (c *Client) writePump() {
	ticker := c.clock.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.sendCh:
			_ = c.conn.SetWriteDeadline(c.clock.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.Chan():
			_ = c.conn.SetWriteDeadline(c.clock.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
		if c.onClose != nil {
			c.onClose()
		}
	})
}
