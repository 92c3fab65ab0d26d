package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 3001, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Reminder.Enabled)
	assert.Equal(t, "*/5 * * * *", cfg.Reminder.Schedule)
	assert.Equal(t, 30, cfg.Reminder.StaleMinutes)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database.Path = "/tmp/billow.db"
	assert.NoError(t, cfg.Validate())

	t.Run("bad port", func(t *testing.T) {
		c := *cfg
		c.Server.Port = 0
		assert.Error(t, c.Validate())

		c.Server.Port = 70000
		assert.Error(t, c.Validate())
	})

	t.Run("missing database path", func(t *testing.T) {
		c := *cfg
		c.Database.Path = ""
		assert.Error(t, c.Validate())
	})

	t.Run("reminder enabled without schedule", func(t *testing.T) {
		c := *cfg
		c.Reminder.Schedule = ""
		assert.Error(t, c.Validate())
	})
}

func TestLoaderDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := NewLoader(filepath.Join(t.TempDir(), "missing.json")).Load()
	require.NoError(t, err)

	assert.Equal(t, 3001, cfg.Server.Port)
	assert.NotEmpty(t, cfg.DataDir)
	assert.NotEmpty(t, cfg.Database.Path)
	assert.NotEmpty(t, cfg.Logging.File)
}

func TestLoaderReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "billow.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"server": {"port": 4500},
		"logging": {"level": "debug"},
		"data_dir": "`+dir+`"
	}`), 0644))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 4500, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "billow.db"), cfg.Database.Path)
}

func TestLoaderRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "billow.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server": {"port": -1}}`), 0644))

	_, err := NewLoader(path).Load()
	assert.Error(t, err)
}
