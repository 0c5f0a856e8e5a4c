package telegram

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gotd/td/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisOptions holds connection settings for the Redis-backed session store.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewSessionStorage resolves the session credential store for the account.
// Precedence: explicit session token > Redis > session file. The store never
// creates a credential on its own; an empty store means the auth-required
// path.
func NewSessionStorage(cfg Config, logger zerolog.Logger) (session.Storage, error) {
	if cfg.SessionString != "" {
		storage, err := storageFromToken(cfg.SessionString)
		if err != nil {
			return nil, WrapError(ErrConfiguration, "invalid session token", err)
		}
		logger.Info().Msg("using session token from environment")
		return storage, nil
	}

	if cfg.Redis != nil {
		store := NewRedisSessionStorage(cfg.Redis)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.client.Ping(ctx).Err(); err != nil {
			return nil, WrapError(ErrConfiguration, "redis session store unreachable", err)
		}
		logger.Info().Str("redis_addr", cfg.Redis.Addr).Msg("using redis session store")
		return store, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.SessionFile), 0o700); err != nil {
		return nil, WrapError(ErrConfiguration, "session directory", err)
	}
	logger.Info().Str("path", cfg.SessionFile).Msg("using file session store")
	return &session.FileStorage{Path: cfg.SessionFile}, nil
}

// storageFromToken loads an opaque session token into an in-memory store.
// The native format is base64-encoded gotd session JSON; a Telethon string
// session is accepted as a fallback.
func storageFromToken(token string) (session.Storage, error) {
	storage := new(session.StorageMemory)
	ctx := context.Background()

	if raw, err := base64.StdEncoding.DecodeString(token); err == nil && bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		if err := storage.StoreSession(ctx, raw); err != nil {
			return nil, err
		}
		return storage, nil
	}

	data, err := session.TelethonSession(token)
	if err != nil {
		return nil, fmt.Errorf("token is neither a session export nor a telethon session: %w", err)
	}
	loader := session.Loader{Storage: storage}
	if err := loader.Save(ctx, data); err != nil {
		return nil, err
	}
	return storage, nil
}

// EncodeToken serializes raw session bytes into the opaque token format.
func EncodeToken(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

// RedisSessionStorage keeps the session credential in a single Redis key.
type RedisSessionStorage struct {
	client *redis.Client
	key    string
}

// NewRedisSessionStorage creates a Redis-backed session store.
func NewRedisSessionStorage(opts *RedisOptions) *RedisSessionStorage {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "telegram-voice:"
	}
	return &RedisSessionStorage{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		key: prefix + "session",
	}
}

// LoadSession implements session.Storage.
func (s *RedisSessionStorage) LoadSession(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// StoreSession implements session.Storage.
func (s *RedisSessionStorage) StoreSession(ctx context.Context, data []byte) error {
	return s.client.Set(ctx, s.key, data, 0).Err()
}

// Close releases the underlying Redis client.
func (s *RedisSessionStorage) Close() error {
	return s.client.Close()
}
