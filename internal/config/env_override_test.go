package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvOverrides_API(t *testing.T) {
	t.Run("URL and token", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("DEBTFLOW_API_URL", "https://api.example")
		t.Setenv("DEBTFLOW_API_TOKEN", "tok")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "https://api.example", cfg.API.BaseURL)
		assert.Equal(t, "tok", cfg.API.Token)
	})

	t.Run("empty values leave config alone", func(t *testing.T) {
		clearEnv(t)

		cfg := &Config{API: APIConfig{BaseURL: "keep", Token: "keep"}}
		cfg.applyEnvOverrides()

		assert.Equal(t, "keep", cfg.API.BaseURL)
		assert.Equal(t, "keep", cfg.API.Token)
	})
}

func TestEnvOverrides_Storage(t *testing.T) {
	t.Run("backend and redis", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("DEBTFLOW_STORAGE_BACKEND", "redis")
		t.Setenv("DEBTFLOW_REDIS_ADDR", "cache:6380")
		t.Setenv("DEBTFLOW_REDIS_DB", "2")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "redis", cfg.Storage.Backend)
		assert.Equal(t, "cache:6380", cfg.Storage.RedisAddr)
		assert.Equal(t, 2, cfg.Storage.RedisDB)
	})

	t.Run("bad redis db ignored", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("DEBTFLOW_REDIS_DB", "two")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, 0, cfg.Storage.RedisDB)
	})

	t.Run("data dir moves file and sqlite paths", func(t *testing.T) {
		clearEnv(t)
		dir := t.TempDir()
		t.Setenv("DEBTFLOW_DATA_DIR", dir)

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, filepath.Join(dir, "drafts"), cfg.Storage.Dir)
		assert.Equal(t, filepath.Join(dir, "drafts.db"), cfg.Storage.SQLitePath)
	})
}

func TestEnvOverrides_BeatFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.API.BaseURL = "https://from-file"
	require.NoError(t, cfg.Save(path))

	t.Setenv("DEBTFLOW_API_URL", "https://from-env")
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://from-env", loaded.API.BaseURL)

	// Env applies even when there is no file.
	loaded, err = Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "https://from-env", loaded.API.BaseURL)
}
