package service

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tIKOOC/telegram-voice/src/hub"
	"github.com/tIKOOC/telegram-voice/src/telegram"
	"github.com/tIKOOC/telegram-voice/src/types"
)

func newTestService(t *testing.T) (*Service, *hub.Hub) {
	t.Helper()
	h := hub.New(zerolog.Nop())
	go h.Run()
	t.Cleanup(func() { h.Stop() })

	manager := telegram.NewManager(telegram.Config{}, func() (telegram.Client, error) {
		t.Fatal("no client expected in this test")
		return nil, nil
	}, zerolog.Nop())

	return New(manager, h, "test-app", true, zerolog.Nop()), h
}

func TestSendMessageValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.SendMessage(context.Background(), 7, "   ")
	assert.Error(t, err, "blank text rejected before any provider call")

	_, err = svc.SendMessage(context.Background(), 7, strings.Repeat("x", MaxMessageLength+1))
	assert.Error(t, err, "oversized text rejected")
}

func TestSendMessageRequiresConnection(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.SendMessage(context.Background(), 7, "hello")
	require.Error(t, err)
	assert.True(t, telegram.IsNotConnected(err))
}

func TestQueriesRequireConnection(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Me(ctx)
	assert.True(t, telegram.IsNotConnected(err))

	_, err = svc.Chats(ctx, 20)
	assert.True(t, telegram.IsNotConnected(err))

	_, err = svc.Messages(ctx, 7, 50)
	assert.True(t, telegram.IsNotConnected(err))

	_, err = svc.Test(ctx)
	assert.True(t, telegram.IsNotConnected(err))
}

func TestStatusNeverFails(t *testing.T) {
	svc, _ := newTestService(t)

	status := svc.Status()
	tg, ok := status["telegram"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, tg["connected"])
	assert.Equal(t, false, tg["client_ready"])

	ws, ok := status["websocket"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 0, ws["active_connections"])

	cfg, ok := status["config"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "test-app", cfg["app_name"])
	assert.Equal(t, true, cfg["debug"])
}

func TestHealthDisconnectedStillHealthy(t *testing.T) {
	svc, _ := newTestService(t)

	report, healthy := svc.Health(context.Background())
	assert.True(t, healthy, "infrastructure is healthy even when Telegram is down")
	assert.Equal(t, "healthy", report["status"])

	tg, ok := report["telegram"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, tg["connected"])
	assert.NotContains(t, tg, "user")
}

func TestFrameHandlers(t *testing.T) {
	svc, h := newTestService(t)
	svc.RegisterFrameHandlers()

	heartbeat := h.HandleFrame(types.InboundFrame{Type: "heartbeat"})
	assert.Equal(t, types.TypeHeartbeatResponse, heartbeat.Type)
	assert.Equal(t, "pong", heartbeat.Data["message"])

	status := h.HandleFrame(types.InboundFrame{Type: "get_status"})
	assert.Equal(t, types.TypeStatus, status.Type)
	assert.Equal(t, false, status.Data["telegram_connected"])
	assert.Equal(t, 0, status.Data["active_connections"])

	echo := h.HandleFrame(types.InboundFrame{Type: "echo", Message: "hello"})
	assert.Equal(t, types.TypeEchoResponse, echo.Type)
	assert.Equal(t, "hello", echo.Data["original_message"])

	unknown := h.HandleFrame(types.InboundFrame{Type: "bogus"})
	assert.Equal(t, types.TypeError, unknown.Type)
}
