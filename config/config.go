package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the full server configuration, loaded from the environment.
type Config struct {
	AppName string
	Host    string
	Port    int
	Debug   bool

	// AllowedOrigins is the CORS allow-list. A single "*" means unrestricted.
	AllowedOrigins []string

	Telegram TelegramConfig
	Socket   SocketConfig
	Redis    *RedisConfig // nil when no Redis session store is configured
}

// TelegramConfig holds the Telegram account credentials.
type TelegramConfig struct {
	APIID   int
	APIHash string
	Phone   string

	// SessionString is the pre-authenticated session token. When empty the
	// server cannot log in on its own; use cmd/telegram-session to create one.
	SessionString string

	// SessionFile is a fallback file-based session location for local runs.
	SessionFile string
}

// SocketConfig holds WebSocket tuning knobs.
type SocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
}

// RedisConfig holds connection settings for the Redis session store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Default returns a Config with sensible defaults and no credentials.
func Default() *Config {
	return &Config{
		AppName:        "Telegram Voice Reply Server",
		Host:           "0.0.0.0",
		Port:           8000,
		AllowedOrigins: []string{"*"},
		Telegram: TelegramConfig{
			SessionFile: "sessions/session.json",
		},
		Socket: SocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			SendBufferSize:  256,
		},
	}
}

// FromEnv loads configuration from environment variables, falling back to
// defaults for any missing values.
func FromEnv() *Config {
	cfg := Default()

	if v := os.Getenv("APP_NAME"); v != "" {
		cfg.AppName = v
	}
	if v := os.Getenv("HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("DEBUG"); v != "" {
		cfg.Debug = parseBool(v)
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitOrigins(v)
	}

	if v := os.Getenv("TELEGRAM_API_ID"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			cfg.Telegram.APIID = id
		}
	}
	if v := os.Getenv("TELEGRAM_API_HASH"); v != "" {
		cfg.Telegram.APIHash = v
	}
	if v := os.Getenv("TELEGRAM_PHONE"); v != "" {
		cfg.Telegram.Phone = v
	}
	if v := os.Getenv("TELEGRAM_SESSION_STRING"); v != "" {
		cfg.Telegram.SessionString = v
	}
	if v := os.Getenv("SESSION_FILE"); v != "" {
		cfg.Telegram.SessionFile = v
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rc := &RedisConfig{
			Addr:   addr,
			Prefix: "telegram-voice:",
		}
		if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
			rc.Password = pw
		}
		if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
			if db, err := strconv.Atoi(dbStr); err == nil {
				rc.DB = db
			}
		}
		if prefix := os.Getenv("REDIS_SESSION_PREFIX"); prefix != "" {
			rc.Prefix = prefix
		}
		cfg.Redis = rc
	}

	return cfg
}

// Validate checks that mandatory Telegram credentials are present.
func (c *Config) Validate() error {
	if c.Telegram.APIID == 0 || c.Telegram.APIHash == "" {
		return fmt.Errorf("missing Telegram API credentials (TELEGRAM_API_ID, TELEGRAM_API_HASH)")
	}
	return nil
}

// Addr returns the host:port bind address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AllowAllOrigins reports whether CORS is unrestricted.
func (c *Config) AllowAllOrigins() bool {
	for _, o := range c.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

// splitOrigins parses a comma-separated origin list, trimming whitespace and
// dropping empty entries.
func splitOrigins(s string) []string {
	parts := strings.Split(s, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if o := strings.TrimSpace(p); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
