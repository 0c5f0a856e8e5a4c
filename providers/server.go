package providers

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/tIKOOC/telegram-voice/config"
	"github.com/tIKOOC/telegram-voice/src/hub"
	"github.com/tIKOOC/telegram-voice/src/service"
)

// Server assembles the REST app and the WebSocket endpoint on one fasthttp
// server: /ws goes to the upgrader, everything else to fiber.
type Server struct {
	app    *fiber.App
	srv    *fasthttp.Server
	logger zerolog.Logger
}

// NewServer builds the HTTP/WS server.
func NewServer(cfg *config.Config, svc *service.Service, h *hub.Hub, logger zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName: cfg.AppName,
	})
	app.Use(recoverer.New())

	corsCfg := cors.Config{AllowOrigins: cfg.AllowedOrigins}
	// Credentials cannot be combined with a wildcard origin.
	if !cfg.AllowAllOrigins() {
		corsCfg.AllowCredentials = true
	}
	app.Use(cors.New(corsCfg))

	NewHTTP(svc, cfg.AppName, logger).Register(app)

	wsHandler := WebSocketHandler(h, cfg.Socket, logger)
	appHandler := app.Handler()
	root := func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == "/ws" {
			wsHandler(ctx)
			return
		}
		appHandler(ctx)
	}

	return &Server{
		app: app,
		srv: &fasthttp.Server{
			Handler: root,
			Name:    cfg.AppName,
		},
		logger: logger.With().Str("component", "server").Logger(),
	}
}

// Listen serves until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("http server listening")
	return s.srv.ListenAndServe(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.srv.Shutdown()
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}
