package providers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/tIKOOC/telegram-voice/src/service"
	"github.com/tIKOOC/telegram-voice/src/telegram"
)

// HTTP registers the REST surface on a fiber app.
type HTTP struct {
	svc     *service.Service
	appName string
	logger  zerolog.Logger
}

// NewHTTP creates the REST handler set.
func NewHTTP(svc *service.Service, appName string, logger zerolog.Logger) *HTTP {
	return &HTTP{
		svc:     svc,
		appName: appName,
		logger:  logger.With().Str("component", "http").Logger(),
	}
}

// Register mounts all routes.
func (h *HTTP) Register(app *fiber.App) {
	app.Get("/", h.handleRoot)
	app.Get("/health", h.handleHealth)

	api := app.Group("/api")
	api.Post("/send", h.handleSend)
	api.Get("/me", h.handleMe)
	api.Get("/chats", h.handleChats)
	api.Get("/chat/:id/messages", h.handleMessages)
	api.Get("/status", h.handleStatus)
	api.Post("/test", h.handleTest)
}

type sendRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

func (h *HTTP) handleSend(c fiber.Ctx) error {
	var req sendRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "invalid request body",
		})
	}

	res, err := h.svc.SendMessage(c.Context(), req.ChatID, req.Text)
	if err != nil {
		return h.serviceError(c, "Failed to send message", err)
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"message":    "Message sent successfully",
		"message_id": res.MessageID,
		"chat_id":    req.ChatID,
		"timestamp":  time.Now(),
	})
}

func (h *HTTP) handleMe(c fiber.Ctx) error {
	me, err := h.svc.Me(c.Context())
	if err != nil {
		return h.serviceError(c, "Failed to get user info", err)
	}
	return c.JSON(me)
}

func (h *HTTP) handleChats(c fiber.Ctx) error {
	limit := fiber.Query(c, "limit", 20)
	chats, err := h.svc.Chats(c.Context(), limit)
	if err != nil {
		return h.serviceError(c, "Failed to get chats", err)
	}
	return c.JSON(fiber.Map{
		"chats": chats,
		"total": len(chats),
	})
}

func (h *HTTP) handleMessages(c fiber.Ctx) error {
	chatID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "invalid chat id",
		})
	}
	limit := fiber.Query(c, "limit", 50)

	messages, err := h.svc.Messages(c.Context(), chatID, limit)
	if err != nil {
		return h.serviceError(c, "Failed to get messages", err)
	}
	return c.JSON(fiber.Map{
		"messages": messages,
		"chat_id":  chatID,
		"total":    len(messages),
	})
}

func (h *HTTP) handleStatus(c fiber.Ctx) error {
	return c.JSON(h.svc.Status())
}

func (h *HTTP) handleTest(c fiber.Ctx) error {
	result, err := h.svc.Test(c.Context())
	if err != nil {
		return h.serviceError(c, "Connection test failed", err)
	}
	return c.JSON(result)
}

func (h *HTTP) handleRoot(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message": h.appName,
		"status":  "running",
		"version": "1.0.0",
	})
}

func (h *HTTP) handleHealth(c fiber.Ctx) error {
	report, healthy := h.svc.Health(c.Context())
	if !healthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(report)
	}
	return c.JSON(report)
}

// serviceError maps a service failure onto the HTTP surface: 503 when the
// Telegram connection is down, 500 with the provider message otherwise.
func (h *HTTP) serviceError(c fiber.Ctx, prefix string, err error) error {
	if telegram.IsNotConnected(err) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"detail": "Telegram client not connected",
		})
	}
	h.logger.Error().Err(err).Msg(prefix)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"detail":     prefix + ": " + err.Error(),
		"error_type": telegram.CodeOf(err).String(),
	})
}
