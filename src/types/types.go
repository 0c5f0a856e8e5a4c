package types

import (
	"fmt"
	"strings"
	"time"
)

// Envelope wraps every payload sent to a WebSocket listener, broadcast or
// direct reply alike.
type Envelope struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEnvelope builds an envelope with the current time.
func NewEnvelope(typ string, data map[string]any) Envelope {
	if data == nil {
		data = map[string]any{}
	}
	return Envelope{Type: typ, Data: data, Timestamp: time.Now()}
}

// Envelope types pushed by the server.
const (
	TypeConnection        = "connection"
	TypeTelegramMessage   = "telegram_message"
	TypeMessageEdited     = "message_edited"
	TypeMessageDeleted    = "message_deleted"
	TypeStatusUpdate      = "status_update"
	TypeStatus            = "status"
	TypeHeartbeatResponse = "heartbeat_response"
	TypeEchoResponse      = "echo_response"
	TypeError             = "error"
)

// InboundFrame is a message received from a WebSocket listener.
type InboundFrame struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// TelegramMessage is the normalized inbound Telegram event.
type TelegramMessage struct {
	ChatID    int64      `json:"chat_id"`
	Sender    string     `json:"sender"`
	Text      string     `json:"text"`
	MessageID int        `json:"message_id,omitempty"`
	Date      *time.Time `json:"date,omitempty"`
	Edited    bool       `json:"edited,omitempty"`
}

// Validate enforces the message invariants: text is trimmed (empty allowed),
// sender is never empty.
func (m *TelegramMessage) Validate() error {
	m.Text = strings.TrimSpace(m.Text)
	m.Sender = strings.TrimSpace(m.Sender)
	if m.Sender == "" {
		return fmt.Errorf("sender name cannot be empty")
	}
	return nil
}

// Data flattens the message into an envelope data map.
func (m *TelegramMessage) Data() map[string]any {
	data := map[string]any{
		"chat_id": m.ChatID,
		"sender":  m.Sender,
		"text":    m.Text,
	}
	if m.MessageID != 0 {
		data["message_id"] = m.MessageID
	}
	if m.Date != nil {
		data["date"] = m.Date.Format(time.RFC3339)
	}
	if m.Edited {
		data["edited"] = true
	}
	return data
}

// DisplayName resolves a sender's display name: first+last name, else the
// username, else a synthesized User<id>. It never returns an empty string.
func DisplayName(firstName, lastName, username string, id int64) string {
	name := strings.TrimSpace(strings.TrimSpace(firstName) + " " + strings.TrimSpace(lastName))
	if name != "" {
		return name
	}
	if username != "" {
		return username
	}
	return fmt.Sprintf("User%d", id)
}

// UserInfo describes the authenticated account.
type UserInfo struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// DisplayName returns the user's display name per the same resolution rule
// as message senders.
func (u UserInfo) DisplayName() string {
	return DisplayName(u.FirstName, u.LastName, u.Username, u.ID)
}

// Chat kinds.
const (
	ChatPrivate = "private"
	ChatGroup   = "group"
	ChatChannel = "channel"
)

// ChatSummary describes one recent conversation.
type ChatSummary struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	Type            string     `json:"type"`
	UnreadCount     int        `json:"unread_count"`
	LastMessageDate *time.Time `json:"last_message_date,omitempty"`
	Username        string     `json:"username,omitempty"`
	FirstName       string     `json:"first_name,omitempty"`
	LastName        string     `json:"last_name,omitempty"`
}

// MessageSummary describes one message in a chat history listing.
type MessageSummary struct {
	ID     int        `json:"id"`
	Text   string     `json:"text"`
	Sender string     `json:"sender"`
	Date   *time.Time `json:"date,omitempty"`
	Out    bool       `json:"out"`
	Media  bool       `json:"media"`
}

// SendResult is the provider acknowledgment for a sent message.
type SendResult struct {
	MessageID int `json:"message_id"`
}

// Conn abstracts a WebSocket connection for testability. Frames are
// text-framed JSON; serialization happens above this interface so a broadcast
// marshals its envelope exactly once.
type Conn interface {
	WriteMessage(data []byte) error
	ReadMessage() ([]byte, error)
	Close() error
}
