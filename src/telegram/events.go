package telegram

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/tIKOOC/telegram-voice/src/types"
)

// Broadcaster receives normalized events for fan-out to listeners. The hub
// implements it.
type Broadcaster interface {
	Broadcast(typ string, data map[string]any)
}

// RawMessage is the translated view of one inbound update, decoupled from
// the MTProto types.
type RawMessage struct {
	ChatID   int64
	Private  bool
	Outgoing bool

	SenderID        int64
	SenderFirstName string
	SenderLastName  string
	SenderUsername  string

	MessageID int
	Text      string
	Date      time.Time
	Edited    bool
}

// Events translates inbound Telegram updates into normalized events and
// pushes them to the broadcaster. Every handler body is isolated: a
// translation or broadcast failure is logged and never propagates into the
// client's dispatch loop.
type Events struct {
	bus    Broadcaster
	logger zerolog.Logger
}

// NewEvents creates the event subscription layer.
func NewEvents(bus Broadcaster, logger zerolog.Logger) *Events {
	return &Events{
		bus:    bus,
		logger: logger.With().Str("component", "events").Logger(),
	}
}

// HandleNewMessage forwards a new inbound message. Group/channel messages
// and messages sent by the account owner are dropped.
func (e *Events) HandleNewMessage(raw RawMessage) {
	defer e.isolate("new message")
	e.forwardMessage(raw, types.TypeTelegramMessage)
}

// HandleMessageEdited forwards an edited message with the edited flag set.
func (e *Events) HandleMessageEdited(raw RawMessage) {
	defer e.isolate("edited message")
	raw.Edited = true
	e.forwardMessage(raw, types.TypeMessageEdited)
}

// HandleMessagesDeleted forwards the removed message ids. Deletion events
// carry no sender context, so no name resolution happens.
func (e *Events) HandleMessagesDeleted(ids []int) {
	defer e.isolate("deleted messages")
	if len(ids) == 0 {
		return
	}
	e.logger.Info().Ints("message_ids", ids).Msg("messages deleted")
	e.bus.Broadcast(types.TypeMessageDeleted, map[string]any{
		"message_ids": ids,
	})
}

// HandleUserStatus logs a presence change. Presence is never broadcast to
// avoid flooding listeners.
func (e *Events) HandleUserStatus(userID int64, online bool) {
	defer e.isolate("user status")
	e.logger.Debug().Int64("user_id", userID).Bool("online", online).Msg("user status updated")
}

func (e *Events) forwardMessage(raw RawMessage, typ string) {
	if !raw.Private || raw.Outgoing {
		return
	}

	date := raw.Date
	msg := types.TelegramMessage{
		ChatID:    raw.ChatID,
		Sender:    types.DisplayName(raw.SenderFirstName, raw.SenderLastName, raw.SenderUsername, raw.SenderID),
		Text:      raw.Text,
		MessageID: raw.MessageID,
		Edited:    raw.Edited,
	}
	if !date.IsZero() {
		msg.Date = &date
	}
	if err := msg.Validate(); err != nil {
		e.logger.Warn().Err(err).Int64("chat_id", raw.ChatID).Msg("dropping invalid message")
		return
	}

	e.logger.Info().
		Str("sender", msg.Sender).
		Int64("chat_id", msg.ChatID).
		Bool("edited", msg.Edited).
		Msg("inbound message")
	e.bus.Broadcast(typ, msg.Data())
}

// isolate recovers a panicking handler body so the dispatch loop survives.
func (e *Events) isolate(what string) {
	if r := recover(); r != nil {
		e.logger.Error().Interface("panic", r).Msgf("error handling %s", what)
	}
}
