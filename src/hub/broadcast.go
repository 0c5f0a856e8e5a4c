package hub

import (
	"encoding/json"

	"github.com/tIKOOC/telegram-voice/src/types"
)

// broadcastEnvelope serializes the envelope once and pushes the same bytes to
// every listener in a snapshot of the active set. Failed pushes are collected
// and evicted in one batch after the pass; a failing listener never affects
// delivery to the others.
func (h *Hub) broadcastEnvelope(env types.Envelope) {
	h.mu.RLock()
	snapshot := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	if len(snapshot) == 0 {
		h.logger.Debug().Str("type", env.Type).Msg("no listeners to broadcast to")
		return
	}

	payload, err := json.Marshal(env)
	if err != nil {
		h.logger.Error().Err(err).Str("type", env.Type).Msg("envelope marshal failed")
		return
	}

	var failed []*Client
	delivered := 0
	for _, c := range snapshot {
		if c.trySend(payload) {
			delivered++
		} else {
			failed = append(failed, c)
		}
	}

	for _, c := range failed {
		h.removeClient(c)
	}

	h.logger.Info().
		Str("type", env.Type).
		Int("delivered", delivered).
		Int("attempted", len(snapshot)).
		Msg("broadcast complete")
}

// sendPersonal pushes an envelope to exactly one listener. A failed push
// evicts the listener; the error is never propagated to the caller.
func (h *Hub) sendPersonal(c *Client, env types.Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		h.logger.Error().Err(err).Str("type", env.Type).Msg("envelope marshal failed")
		return
	}
	if !c.trySend(payload) {
		h.logger.Warn().Str("client_id", c.ID).Msg("personal send failed, evicting")
		h.removeClient(c)
	}
}

// HandleFrame computes the reply for one inbound frame. Unknown frame types
// get an error envelope.
func (h *Hub) HandleFrame(frame types.InboundFrame) types.Envelope {
	h.mu.RLock()
	handler, ok := h.handlers[frame.Type]
	h.mu.RUnlock()

	if !ok {
		h.logger.Warn().Str("type", frame.Type).Msg("unknown websocket message type")
		return types.NewEnvelope(types.TypeError, map[string]any{
			"message": "Unknown message type: " + frame.Type,
		})
	}
	return handler(frame)
}

// handleFrame replies directly to the sending listener.
func (h *Hub) handleFrame(c *Client, frame types.InboundFrame) {
	h.logger.Debug().Str("type", frame.Type).Str("client_id", c.ID).Msg("frame received")
	h.sendPersonal(c, h.HandleFrame(frame))
}

// RegisterHandler registers a handler for an inbound frame type.
func (h *Hub) RegisterHandler(typ string, handler FrameHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[typ] = handler
}
