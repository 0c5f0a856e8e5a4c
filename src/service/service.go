package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tIKOOC/telegram-voice/src/hub"
	"github.com/tIKOOC/telegram-voice/src/telegram"
	"github.com/tIKOOC/telegram-voice/src/types"
)

// MaxMessageLength is Telegram's text message limit.
const MaxMessageLength = 4096

// healthCheckTimeout bounds the identity query in Health so a stalled
// provider cannot starve infrastructure checks.
const healthCheckTimeout = 5 * time.Second

// Service is the request/response surface over the Telegram connection and
// the listener hub. It is thin glue: validation, delegation, shaping.
type Service struct {
	manager *telegram.Manager
	hub     *hub.Hub
	appName string
	debug   bool
	logger  zerolog.Logger
}

// New creates the request surface service.
func New(manager *telegram.Manager, h *hub.Hub, appName string, debug bool, logger zerolog.Logger) *Service {
	return &Service{
		manager: manager,
		hub:     h,
		appName: appName,
		debug:   debug,
		logger:  logger.With().Str("component", "service").Logger(),
	}
}

// SendMessage validates and sends a text message, returning the provider
// acknowledgment.
func (s *Service) SendMessage(ctx context.Context, chatID int64, text string) (types.SendResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.SendResult{}, fmt.Errorf("message text cannot be empty")
	}
	if len(text) > MaxMessageLength {
		return types.SendResult{}, fmt.Errorf("message text exceeds %d characters", MaxMessageLength)
	}

	s.logger.Info().Int64("chat_id", chatID).Int("length", len(text)).Msg("sending message")
	res, err := s.manager.SendMessageSafe(ctx, chatID, text, 3)
	if err != nil {
		return types.SendResult{}, err
	}
	s.logger.Info().Int("message_id", res.MessageID).Msg("message sent")
	return res, nil
}

// Me returns the authenticated account identity.
func (s *Service) Me(ctx context.Context) (types.UserInfo, error) {
	client, err := s.manager.Client()
	if err != nil {
		return types.UserInfo{}, err
	}
	return client.Me(ctx)
}

// Chats lists recent conversations.
func (s *Service) Chats(ctx context.Context, limit int) ([]types.ChatSummary, error) {
	client, err := s.manager.Client()
	if err != nil {
		return nil, err
	}
	return client.Dialogs(ctx, limit)
}

// Messages lists recent messages from one chat.
func (s *Service) Messages(ctx context.Context, chatID int64, limit int) ([]types.MessageSummary, error) {
	client, err := s.manager.Client()
	if err != nil {
		return nil, err
	}
	return client.History(ctx, chatID, limit)
}

// Status describes the aggregate system state. It never fails; degraded
// state is reported, not raised.
func (s *Service) Status() map[string]any {
	return map[string]any{
		"telegram": map[string]any{
			"connected":    s.manager.IsConnected(),
			"client_ready": s.manager.Ready(),
		},
		"websocket": map[string]any{
			"active_connections": s.hub.ConnectionCount(),
		},
		"config": map[string]any{
			"debug":    s.debug,
			"app_name": s.appName,
		},
	}
}

// Test exercises the connection: identity plus a small dialog listing.
func (s *Service) Test(ctx context.Context) (map[string]any, error) {
	client, err := s.manager.Client()
	if err != nil {
		return nil, err
	}
	me, err := client.Me(ctx)
	if err != nil {
		return nil, err
	}
	dialogs, err := client.Dialogs(ctx, 10)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"success": true,
		"message": "Telegram connection is working",
		"user": map[string]any{
			"id":       me.ID,
			"name":     me.DisplayName(),
			"username": me.Username,
		},
		"dialogs_accessible": len(dialogs),
	}, nil
}

// Health reports liveness for deployment platforms. The identity query is
// bounded so a stalled provider degrades the report instead of hanging it.
func (s *Service) Health(ctx context.Context) (map[string]any, bool) {
	telegramStatus := map[string]any{
		"connected":    s.manager.IsConnected(),
		"client_ready": s.manager.Ready(),
	}
	healthy := true

	if s.manager.IsConnected() {
		checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		defer cancel()
		if me, err := s.Me(checkCtx); err == nil {
			telegramStatus["user"] = map[string]any{
				"id":       me.ID,
				"username": me.Username,
				"name":     me.DisplayName(),
			}
		} else {
			s.logger.Warn().Err(err).Msg("health identity check failed")
			healthy = false
		}
	}

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	return map[string]any{
		"status":     status,
		"telegram":   telegramStatus,
		"debug_mode": s.debug,
	}, healthy
}

// BroadcastStatus pushes a status_update envelope to every listener.
func (s *Service) BroadcastStatus(status string, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	s.hub.Broadcast(types.TypeStatusUpdate, map[string]any{
		"status":  status,
		"details": details,
	})
}

// RegisterFrameHandlers wires the client→server WebSocket protocol:
// heartbeat, get_status, and echo. Unknown types and malformed frames are
// handled by the hub itself.
func (s *Service) RegisterFrameHandlers() {
	s.hub.RegisterHandler("heartbeat", func(types.InboundFrame) types.Envelope {
		return types.NewEnvelope(types.TypeHeartbeatResponse, map[string]any{
			"message": "pong",
		})
	})
	s.hub.RegisterHandler("get_status", func(types.InboundFrame) types.Envelope {
		return types.NewEnvelope(types.TypeStatus, map[string]any{
			"telegram_connected": s.manager.IsConnected(),
			"active_connections": s.hub.ConnectionCount(),
		})
	})
	s.hub.RegisterHandler("echo", func(frame types.InboundFrame) types.Envelope {
		return types.NewEnvelope(types.TypeEchoResponse, map[string]any{
			"original_message": frame.Message,
		})
	})
}
