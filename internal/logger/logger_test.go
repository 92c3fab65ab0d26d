package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("should create logger with defaults", func(t *testing.T) {
		l, err := New(DefaultConfig())
		require.NoError(t, err)
		defer l.Close()

		assert.NotNil(t, l)
	})

	t.Run("should fall back to info on bad level", func(t *testing.T) {
		l, err := New(Config{Level: "nonsense", Console: true})
		require.NoError(t, err)
		defer l.Close()

		assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
	})

	t.Run("should apply level changes to derived loggers", func(t *testing.T) {
		l, err := New(Config{Level: "info", Console: true})
		require.NoError(t, err)
		defer l.Close()

		child := l.GetZerolog().With().Str("component", "test").Logger()
		assert.False(t, child.Debug().Enabled())

		SetLevel("debug")
		defer SetLevel("info")
		assert.True(t, child.Debug().Enabled())
	})

	t.Run("should create log file and parent directory", func(t *testing.T) {
		tmpDir := t.TempDir()
		logPath := filepath.Join(tmpDir, "logs", "billow.log")

		l, err := New(Config{Level: "debug", File: logPath})
		require.NoError(t, err)

		zl := l.GetZerolog()
		zl.Info().Msg("hello")
		require.NoError(t, l.Close())

		data, err := os.ReadFile(logPath)
		require.NoError(t, err)
		assert.Contains(t, string(data), "hello")
	})
}
