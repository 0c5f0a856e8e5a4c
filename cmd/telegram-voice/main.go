package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tIKOOC/telegram-voice/config"
	"github.com/tIKOOC/telegram-voice/providers"
	"github.com/tIKOOC/telegram-voice/src/hub"
	"github.com/tIKOOC/telegram-voice/src/service"
	"github.com/tIKOOC/telegram-voice/src/telegram"
)

func main() {
	cfg := config.FromEnv()
	logger := newLogger(cfg.Debug)

	logger.Info().Str("app", cfg.AppName).Msg("starting")

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	tgCfg := telegramConfig(cfg)
	storage, err := telegram.NewSessionStorage(tgCfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("session store")
	}

	h := hub.New(logger)
	go h.Run()

	events := telegram.NewEvents(h, logger)
	manager := telegram.NewManager(tgCfg, func() (telegram.Client, error) {
		return telegram.NewClient(tgCfg, storage, events, logger), nil
	}, logger)

	svc := service.New(manager, h, cfg.AppName, cfg.Debug, logger)
	svc.RegisterFrameHandlers()

	srv := providers.NewServer(cfg, svc, h, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := manager.Initialize(ctx); err != nil {
		switch telegram.CodeOf(err) {
		case telegram.ErrConfiguration, telegram.ErrAuthRequired:
			// Operator intervention required; nothing a retry will fix.
			logger.Fatal().Err(err).Msg("telegram startup failed")
		default:
			// Serve degraded: status/health report the disconnected state.
			logger.Error().Err(err).Msg("telegram unavailable at startup")
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(cfg.Addr())
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("server error")
		}
	}

	if err := srv.Shutdown(); err != nil {
		logger.Warn().Err(err).Msg("server shutdown")
	}
	manager.Disconnect()
	h.Stop()
	logger.Info().Msg("cleanup completed")
}

func telegramConfig(cfg *config.Config) telegram.Config {
	tc := telegram.Config{
		APIID:         cfg.Telegram.APIID,
		APIHash:       cfg.Telegram.APIHash,
		Phone:         cfg.Telegram.Phone,
		SessionString: cfg.Telegram.SessionString,
		SessionFile:   cfg.Telegram.SessionFile,
	}
	if cfg.Redis != nil {
		tc.Redis = &telegram.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		}
	}
	return tc
}

func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	out := io.Writer(os.Stdout)
	if debug {
		level = zerolog.DebugLevel
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
