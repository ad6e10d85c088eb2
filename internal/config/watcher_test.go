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

func TestWatcher_ReloadsAndNotifies(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	require.NoError(t, cfg.Save(path))

	w, err := NewWatcher(path, cfg)
	require.NoError(t, err)

	got := make(chan *Config, 4)
	w.Subscribe(func(c *Config) { got <- c })
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	cfg.Wizard.DebounceWindow = "750ms"
	require.NoError(t, cfg.Save(path))

	select {
	case c := <-got:
		assert.Equal(t, 750*time.Millisecond, c.GetDebounceWindow())
		assert.Same(t, c, w.Current())
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed")
	}
}

func TestWatcher_InvalidFileKeepsPrevious(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	require.NoError(t, cfg.Save(path))

	w, err := NewWatcher(path, cfg)
	require.NoError(t, err)
	called := make(chan struct{}, 1)
	w.Subscribe(func(*Config) { called <- struct{}{} })
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("storage:\n  backend: etcd\n"), 0644))

	select {
	case <-called:
		t.Fatal("invalid config must not be published")
	case <-time.After(500 * time.Millisecond):
	}
	assert.Same(t, cfg, w.Current())
}

func TestWatcher_StopIdempotent(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), "config.yaml"), DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}
