package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "0.0.0.0:8000", cfg.Addr())
	assert.False(t, cfg.Debug)
	assert.True(t, cfg.AllowAllOrigins())
	assert.Nil(t, cfg.Redis)
	assert.Error(t, cfg.Validate(), "defaults carry no credentials")
}

func TestFromEnv(t *testing.T) {
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "9000")
	t.Setenv("DEBUG", "true")
	t.Setenv("TELEGRAM_API_ID", "12345")
	t.Setenv("TELEGRAM_API_HASH", "abcdef")
	t.Setenv("TELEGRAM_PHONE", "+1555000111")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg := FromEnv()

	assert.Equal(t, "127.0.0.1:9000", cfg.Addr())
	assert.True(t, cfg.Debug)
	assert.Equal(t, 12345, cfg.Telegram.APIID)
	assert.Equal(t, "abcdef", cfg.Telegram.APIHash)
	assert.Equal(t, "+1555000111", cfg.Telegram.Phone)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.False(t, cfg.AllowAllOrigins())
	require.NoError(t, cfg.Validate())
}

func TestFromEnvInvalidPortIgnored(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	cfg := FromEnv()
	assert.Equal(t, 8000, cfg.Port)
}

func TestFromEnvRedis(t *testing.T) {
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")

	cfg := FromEnv()
	require.NotNil(t, cfg.Redis)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "telegram-voice:", cfg.Redis.Prefix)
}

func TestSplitOrigins(t *testing.T) {
	assert.Equal(t, []string{"*"}, splitOrigins("*"))
	assert.Equal(t, []string{"https://x"}, splitOrigins(" https://x "))
	assert.Equal(t, []string{"a", "b"}, splitOrigins("a,,b,"))
	assert.Equal(t, []string{"*"}, splitOrigins(" , "), "blank list falls back to wildcard")
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", "yes", "on"} {
		assert.True(t, parseBool(v), v)
	}
	for _, v := range []string{"", "0", "false", "off", "nope"} {
		assert.False(t, parseBool(v), v)
	}
}
