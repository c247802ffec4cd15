package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	req := require.New(t)
	t.Chdir(t.TempDir())

	cfg, err := Load()

	req.NoError(err)
	req.Equal(9000, cfg.Port)
	req.Equal("INFO", cfg.LogLevel)
	req.Equal(64, cfg.SendBuffer)
	req.Equal(2000, cfg.MaxMessageRunes)
	req.Equal(10*time.Second, cfg.ShutdownTimeout)
	req.Empty(cfg.JournalPath)
	req.Equal(":9000", cfg.Address())
}

func TestLoad_Overrides(t *testing.T) {
	req := require.New(t)
	t.Chdir(t.TempDir())
	t.Setenv("CHAT_HOST", "127.0.0.1")
	t.Setenv("CHAT_PORT", "9100")
	t.Setenv("CHAT_JOURNAL_PATH", "/tmp/chat.db")
	t.Setenv("CHAT_SHUTDOWN_TIMEOUT", "3s")

	cfg, err := Load()

	req.NoError(err)
	req.Equal("127.0.0.1:9100", cfg.Address())
	req.Equal("/tmp/chat.db", cfg.JournalPath)
	req.Equal(3*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CHAT_SEND_BUFFER", "0")

	_, err := Load()

	require.ErrorContains(t, err, "CHAT_SEND_BUFFER")
}
