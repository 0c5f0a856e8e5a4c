package telegram

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tIKOOC/telegram-voice/src/types"
)

// Config holds the Telegram account credentials and connection settings.
type Config struct {
	APIID   int
	APIHash string
	Phone   string

	// SessionString is the pre-authenticated session token. When empty, the
	// session must already exist in the Redis or file store; the server never
	// performs an interactive login.
	SessionString string
	SessionFile   string
	Redis         *RedisOptions

	// ConnectTimeout bounds connection establishment. Defaults to 30s.
	ConnectTimeout time.Duration
}

// Client is the operations surface of one live Telegram connection. The
// MTProto implementation lives behind this seam; see gotd.go.
type Client interface {
	// Connect establishes the connection, verifies authorization, and
	// returns the account identity.
	Connect(ctx context.Context) (types.UserInfo, error)
	// Close tears down the connection. Idempotent.
	Close() error
	// Alive reports whether the underlying transport is live.
	Alive() bool

	SendMessage(ctx context.Context, chatID int64, text string) (types.SendResult, error)
	Me(ctx context.Context) (types.UserInfo, error)
	Dialogs(ctx context.Context, limit int) ([]types.ChatSummary, error)
	History(ctx context.Context, chatID int64, limit int) ([]types.MessageSummary, error)
}

// Manager owns the single live connection to Telegram: initialization races,
// teardown, and safe sends with retry. One connection per lifecycle; after
// Disconnect a new Initialize rebuilds from scratch.
type Manager struct {
	cfg     Config
	factory func() (Client, error)
	logger  zerolog.Logger

	mu        sync.RWMutex
	client    Client
	connected bool

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewManager creates a lifecycle manager around a client factory. The
// factory is invoked at most once per successful lifecycle.
func NewManager(cfg Config, factory func() (Client, error), logger zerolog.Logger) *Manager {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	return &Manager{
		cfg:     cfg,
		factory: factory,
		logger:  logger.With().Str("component", "telegram").Logger(),
		sleep:   sleepCtx,
	}
}

// Initialize connects the client if it is not connected yet. Idempotent and
// safe under concurrent callers: exactly one underlying connection attempt
// happens, and every caller resolves to the same client.
func (m *Manager) Initialize(ctx context.Context) (Client, error) {
	m.mu.RLock()
	client := m.client
	m.mu.RUnlock()
	if client != nil {
		return client, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		return m.client, nil
	}

	if m.cfg.APIID == 0 || m.cfg.APIHash == "" {
		return nil, NewError(ErrConfiguration, "missing Telegram API credentials")
	}

	client, err := m.factory()
	if err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	m.logger.Info().Msg("connecting to Telegram")
	me, err := client.Connect(connectCtx)
	if err != nil {
		_ = client.Close()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, WrapError(ErrTimeout, "telegram connection timeout", err)
		}
		return nil, err
	}

	m.client = client
	m.connected = true
	m.logger.Info().
		Int64("id", me.ID).
		Str("username", me.Username).
		Str("name", me.DisplayName()).
		Msg("connected to Telegram")
	return client, nil
}

// Client returns the live client, or ErrNotConnected.
func (m *Manager) Client() (Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.connected || m.client == nil {
		return nil, NewError(ErrNotConnected, "telegram client not connected")
	}
	return m.client, nil
}

// IsConnected reports true only when the internal flag is set and the
// underlying transport is live.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected && m.client != nil && m.client.Alive()
}

// Ready reports whether a client has been built at all, connected or not.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client != nil
}

// Disconnect tears down the connection. Idempotent and safe to call before
// any Initialize. In-flight retry loops observe the cleared flag and fail
// fast on their next attempt.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	client := m.client
	m.client = nil
	m.connected = false
	m.mu.Unlock()

	if client != nil {
		if err := client.Close(); err != nil {
			m.logger.Warn().Err(err).Msg("disconnect error")
		}
		m.logger.Info().Msg("disconnected from Telegram")
	}
}

// SendMessageSafe sends text to a chat with retry. Flood-wait errors sleep
// the provider hint capped at five minutes and consume one attempt; other
// transient failures back off exponentially. Fails immediately with
// ErrNotConnected when disconnected, including mid-retry.
func (m *Manager) SendMessageSafe(ctx context.Context, chatID int64, text string, maxRetries int) (types.SendResult, error) {
	if maxRetries <= 0 {
		maxRetries = 3
	}

	client, err := m.Client()
	if err != nil {
		return types.SendResult{}, err
	}
	if !m.IsConnected() {
		return types.SendResult{}, NewError(ErrNotConnected, "telegram client not connected")
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		res, err := client.SendMessage(ctx, chatID, text)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if attempt == maxRetries-1 {
			break
		}
		if !m.IsConnected() {
			return types.SendResult{}, WrapError(ErrNotConnected, "disconnected during retry", err)
		}

		hint, isFlood := AsFloodWait(err)
		delay := NextDelay(attempt, hint)
		if isFlood {
			m.logger.Warn().
				Dur("required", hint).
				Dur("waiting", delay).
				Msg("flood wait from Telegram")
		} else {
			m.logger.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Int("max", maxRetries).
				Dur("backoff", delay).
				Msg("send failed, retrying")
		}
		if err := m.sleep(ctx, delay); err != nil {
			return types.SendResult{}, err
		}
	}
	return types.SendResult{}, lastErr
}

// sleepCtx sleeps for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
