package hub

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/tIKOOC/telegram-voice/src/types"
)

// Hub manages the set of connected WebSocket listeners and fans out
// envelopes to all of them. All set mutation happens on the Run loop, so a
// broadcast always iterates a point-in-time snapshot and evicts failed
// listeners in one batch after the pass.
type Hub struct {
	clients    map[string]*Client
	nextConnID int64

	register   chan *Client
	unregister chan *Client
	incoming   chan inboundFrame
	broadcast  chan types.Envelope

	handlers map[string]FrameHandler

	mu     sync.RWMutex
	logger zerolog.Logger
	done   chan struct{}
}

// FrameHandler handles one inbound frame type and returns the direct reply.
type FrameHandler func(frame types.InboundFrame) types.Envelope

type inboundFrame struct {
	client *Client
	frame  types.InboundFrame
}

// New creates a new Hub instance.
func New(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		incoming:   make(chan inboundFrame, 256),
		broadcast:  make(chan types.Envelope, 256),
		handlers:   make(map[string]FrameHandler),
		logger:     logger.With().Str("component", "hub").Logger(),
		done:       make(chan struct{}),
	}
}

// Run starts the hub event loop. Call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case in := <-h.incoming:
			h.handleFrame(in.client, in.frame)
		case env := <-h.broadcast:
			h.broadcastEnvelope(env)
		case <-h.done:
			return
		}
	}
}

// Stop halts the hub event loop.
func (h *Hub) Stop() {
	close(h.done)
}

// Register queues a listener for registration. A no-op after Stop.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister queues a listener for removal. Safe to call more than once for
// the same listener.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast queues an envelope for delivery to every connected listener.
func (h *Hub) Broadcast(typ string, data map[string]any) {
	select {
	case h.broadcast <- types.NewEnvelope(typ, data):
	case <-h.done:
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.nextConnID++
	c.ConnID = h.nextConnID
	h.clients[c.ID] = c
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info().
		Str("client_id", c.ID).
		Int64("connection_id", c.ConnID).
		Int("total", total).
		Msg("websocket connected")

	h.sendPersonal(c, types.NewEnvelope(types.TypeConnection, map[string]any{
		"message":       "WebSocket connected successfully",
		"connection_id": c.ConnID,
		"client_id":     c.ID,
	}))
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	total := len(h.clients)
	h.mu.Unlock()

	c.Close()
	h.logger.Info().
		Str("client_id", c.ID).
		Int("total", total).
		Msg("websocket disconnected")
}
