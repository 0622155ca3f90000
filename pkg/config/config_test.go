package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Default(t *testing.T) {
	t.Run("Should return valid default configuration", func(t *testing.T) {
		cfg := Default()
		require.NotNil(t, cfg)
		assert.Equal(t, "memory", cfg.Storage.Driver)
		assert.Equal(t, 1, cfg.Engine.Concurrency)
		assert.Equal(t, 3, cfg.Engine.MaxRetries)
		assert.Equal(t, 60*time.Second, cfg.Scheduler.SweepInterval)
		assert.Equal(t, "info", cfg.Log.Level)
	})
}

func TestManager_Load(t *testing.T) {
	t.Run("Should apply env overrides on top of defaults", func(t *testing.T) {
		t.Setenv("ENGINE_STORAGE_DRIVER", "postgres")
		t.Setenv("ENGINE_ENGINE_CONCURRENCY", "4")
		m := NewManager()
		cfg, err := m.Load(context.Background(), NewDefaultProvider(), NewEnvProvider())
		require.NoError(t, err)
		assert.Equal(t, "postgres", cfg.Storage.Driver)
		assert.Equal(t, 4, cfg.Engine.Concurrency)
		assert.Same(t, cfg, m.Get())
	})

	t.Run("Should apply file overrides before env overrides", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("storage:\n  driver: postgres\n"), 0o600))
		t.Setenv("ENGINE_ENGINE_MAX_RETRIES", "5")
		m := NewManager()
		cfg, err := m.Load(context.Background(), NewFileProvider(path), NewEnvProvider())
		require.NoError(t, err)
		assert.Equal(t, "postgres", cfg.Storage.Driver)
		assert.Equal(t, 5, cfg.Engine.MaxRetries)
	})

	t.Run("Should ignore a missing config file", func(t *testing.T) {
		m := NewManager()
		cfg, err := m.Load(context.Background(), NewFileProvider(filepath.Join(t.TempDir(), "missing.yaml")))
		require.NoError(t, err)
		assert.Equal(t, "memory", cfg.Storage.Driver)
	})

	t.Run("Should merge multiple overridden fields from one file in a single pass", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(
			"storage:\n  driver: postgres\n  host: db.internal\nlog:\n  json: true\n",
		), 0o600))
		m := NewManager()
		cfg, err := m.Load(context.Background(), NewFileProvider(path))
		require.NoError(t, err)
		assert.Equal(t, "postgres", cfg.Storage.Driver)
		assert.Equal(t, "db.internal", cfg.Storage.Host)
		assert.True(t, cfg.Log.JSON)
		// Untouched fields keep their defaults.
		assert.Equal(t, "5432", cfg.Storage.Port)
		assert.Equal(t, 3, cfg.Engine.MaxRetries)
	})

	t.Run("Should accept a human duration for scheduler env overrides", func(t *testing.T) {
		t.Setenv("ENGINE_SCHEDULER_SWEEP_INTERVAL", "2 minutes")
		t.Setenv("ENGINE_SCHEDULER_MAX_TIMER_DELAY", "1 hour")
		m := NewManager()
		cfg, err := m.Load(context.Background(), NewDefaultProvider(), NewEnvProvider())
		require.NoError(t, err)
		assert.Equal(t, 2*time.Minute, cfg.Scheduler.SweepInterval)
		assert.Equal(t, time.Hour, cfg.Scheduler.MaxTimerDelay)
	})

	t.Run("Should apply a scheduler default timezone override", func(t *testing.T) {
		t.Setenv("ENGINE_SCHEDULER_DEFAULT_TZ", "America/New_York")
		m := NewManager()
		cfg, err := m.Load(context.Background(), NewDefaultProvider(), NewEnvProvider())
		require.NoError(t, err)
		assert.Equal(t, "America/New_York", cfg.Scheduler.DefaultTZ)
	})
}
