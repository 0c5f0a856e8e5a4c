package providers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tIKOOC/telegram-voice/config"
	"github.com/tIKOOC/telegram-voice/src/hub"
	"github.com/tIKOOC/telegram-voice/src/service"
	"github.com/tIKOOC/telegram-voice/src/telegram"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()

	h := hub.New(zerolog.Nop())
	go h.Run()
	t.Cleanup(func() { h.Stop() })

	manager := telegram.NewManager(telegram.Config{}, func() (telegram.Client, error) {
		t.Fatal("no client expected in this test")
		return nil, nil
	}, zerolog.Nop())

	svc := service.New(manager, h, cfg.AppName, false, zerolog.Nop())
	return NewServer(cfg, svc, h, zerolog.Nop())
}

func getJSON(t *testing.T, srv *Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(raw, &parsed), "body: %s", raw)
	return resp.StatusCode, parsed
}

func TestRootRoute(t *testing.T) {
	srv := newTestServer(t)

	code, body := getJSON(t, srv, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "running", body["status"])
}

func TestHealthRoute(t *testing.T) {
	srv := newTestServer(t)

	code, body := getJSON(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
}

func TestStatusRoute(t *testing.T) {
	srv := newTestServer(t)

	code, body := getJSON(t, srv, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusOK, code)

	tg, ok := body["telegram"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, tg["connected"])
	ws, ok := body["websocket"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(0), ws["active_connections"])
}

func TestSendWhileDisconnected(t *testing.T) {
	srv := newTestServer(t)

	code, body := getJSON(t, srv, http.MethodPost, "/api/send", `{"chat_id":7,"text":"hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "Telegram client not connected", body["detail"])
}

func TestSendRejectsBadBody(t *testing.T) {
	srv := newTestServer(t)

	code, body := getJSON(t, srv, http.MethodPost, "/api/send", `{not json`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid request body", body["detail"])
}

func TestMeWhileDisconnected(t *testing.T) {
	srv := newTestServer(t)

	code, _ := getJSON(t, srv, http.MethodGet, "/api/me", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestHandlerPanicRecovered(t *testing.T) {
	srv := newTestServer(t)
	srv.App().Get("/boom", func(fiber.Ctx) error {
		panic("handler blew up")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestMessagesRejectsBadChatID(t *testing.T) {
	srv := newTestServer(t)

	code, body := getJSON(t, srv, http.MethodGet, "/api/chat/not-a-number/messages", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid chat id", body["detail"])
}
