package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/tIKOOC/telegram-voice/src/types"
)

// Client wraps one listener connection. Its only state is membership in the
// hub's active set; there is no per-listener backlog beyond the send buffer.
type Client struct {
	ID     string
	ConnID int64 // ordinal connection id, assigned by the hub at accept time

	conn        types.Conn
	hub         *Hub
	send        chan []byte
	connectedAt time.Time

	mu     sync.Mutex
	done   chan struct{}
	closed bool
}

// NewClient creates a new listener wrapper around a connection.
func NewClient(id string, conn types.Conn, h *Hub, sendBuffer int) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Client{
		ID:          id,
		conn:        conn,
		hub:         h,
		send:        make(chan []byte, sendBuffer),
		connectedAt: time.Now(),
		done:        make(chan struct{}),
	}
}

// trySend queues a serialized envelope without blocking. A full buffer or a
// closed client counts as a failed push.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// ReadPump reads frames from the connection and routes them to the hub.
// A malformed (non-JSON) frame gets an error reply and the connection stays
// open; a transport error ends the pump and unregisters the client.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame types.InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			reply := types.NewEnvelope(types.TypeError, map[string]any{
				"message": "Invalid JSON format",
			})
			if payload, err := json.Marshal(reply); err == nil {
				c.trySend(payload)
			}
			continue
		}
		select {
		case c.hub.incoming <- inboundFrame{client: c, frame: frame}:
		case <-c.hub.done:
			return
		}
	}
}

// WritePump writes queued envelopes to the connection.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteMessage(data); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close signals the client to stop its pumps. Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}
