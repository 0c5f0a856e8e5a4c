package telegram

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gotd/td/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	raw := []byte(`{"Version":1,"Data":{"DC":2,"Addr":"149.154.167.50:443"}}`)
	token := EncodeToken(raw)

	storage, err := storageFromToken(token)
	require.NoError(t, err)

	loaded, err := storage.LoadSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, raw, loaded)
}

func TestInvalidTokenRejected(t *testing.T) {
	_, err := storageFromToken("definitely-not-a-session")
	assert.Error(t, err)
}

func TestSessionStoragePrecedence(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		SessionString: EncodeToken([]byte(`{"Version":1}`)),
		SessionFile:   filepath.Join(dir, "nested", "voice.session"),
	}

	storage, err := NewSessionStorage(cfg, zerolog.Nop())
	require.NoError(t, err)

	// Token wins over the file path: nothing touches the filesystem.
	_, err = storage.LoadSession(context.Background())
	require.NoError(t, err)
	_, statErr := os.Stat(filepath.Join(dir, "nested"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFileSessionStorageCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{SessionFile: filepath.Join(dir, "sessions", "voice.session")}

	storage, err := NewSessionStorage(cfg, zerolog.Nop())
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, "sessions"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Empty store reports not-found, never fabricates a credential.
	_, err = storage.LoadSession(context.Background())
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestInvalidTokenFailsStorageResolution(t *testing.T) {
	cfg := Config{SessionString: "garbage"}
	_, err := NewSessionStorage(cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Equal(t, ErrConfiguration, CodeOf(err))
}
