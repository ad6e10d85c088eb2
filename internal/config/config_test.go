package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"debtflow/internal/calc"
	"debtflow/internal/persist"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DEBTFLOW_API_URL", "DEBTFLOW_API_TOKEN", "DEBTFLOW_USER_EMAIL",
		"DEBTFLOW_STORAGE_BACKEND", "DEBTFLOW_REDIS_ADDR", "DEBTFLOW_REDIS_DB", "DEBTFLOW_DATA_DIR",
	} {
		t.Setenv(k, "")
	}
}

// =============================================================================
// UNIFIED CONFIG TESTS
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "debtflow" {
		t.Errorf("expected Name=debtflow, got %s", cfg.Name)
	}
	if cfg.Storage.Backend != persist.BackendFile {
		t.Errorf("expected Backend=file, got %s", cfg.Storage.Backend)
	}
	if cfg.MonthEndPolicy() != calc.PolicyClamp {
		t.Errorf("expected clamp policy, got %s", cfg.MonthEndPolicy())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.API.BaseURL = "https://finance.example/api"
	cfg.Storage.Backend = persist.BackendSQLite
	cfg.Wizard.MonthEndPolicy = "overflow"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.API.BaseURL != "https://finance.example/api" {
		t.Errorf("expected BaseURL to round trip, got %s", loaded.API.BaseURL)
	}
	if loaded.Storage.Backend != persist.BackendSQLite {
		t.Errorf("expected Backend=sqlite, got %s", loaded.Storage.Backend)
	}
	if loaded.MonthEndPolicy() != calc.PolicyOverflow {
		t.Errorf("expected overflow policy, got %s", loaded.MonthEndPolicy())
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.API.BaseURL != DefaultConfig().API.BaseURL {
		t.Errorf("expected default BaseURL, got %s", cfg.API.BaseURL)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("wizard:\n  debounce_window: 1s\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.GetDebounceWindow() != time.Second {
		t.Errorf("expected 1s window, got %v", cfg.GetDebounceWindow())
	}
	if cfg.Gateway.CallbackAddr != "127.0.0.1:8765" {
		t.Errorf("expected default callback addr, got %s", cfg.Gateway.CallbackAddr)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("api: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestDurationGettersFallBack(t *testing.T) {
	cfg := &Config{}
	cfg.API.Timeout = "nonsense"
	cfg.Wizard.DebounceWindow = "-5ms"

	if got := cfg.GetAPITimeout(); got != 15*time.Second {
		t.Errorf("GetAPITimeout = %v", got)
	}
	if got := cfg.GetDebounceWindow(); got != 300*time.Millisecond {
		t.Errorf("GetDebounceWindow = %v", got)
	}
	if got := cfg.GetMaxRecoveryAge(); got != 2*time.Hour {
		t.Errorf("GetMaxRecoveryAge = %v", got)
	}
	if got := cfg.GetRedisTTL(); got != 0 {
		t.Errorf("GetRedisTTL = %v, want no expiry", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"missing base url", func(c *Config) { c.API.BaseURL = " " }, true},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "etcd" }, true},
		{"backend is case insensitive", func(c *Config) { c.Storage.Backend = "Redis" }, false},
		{"unknown sqlite driver", func(c *Config) { c.Storage.SQLiteDriver = "pgx" }, true},
		{"mattn driver", func(c *Config) { c.Storage.SQLiteDriver = persist.DriverMattn }, false},
		{"unknown policy", func(c *Config) { c.Wizard.MonthEndPolicy = "round" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStorageOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Backend = persist.BackendRedis
	cfg.Storage.RedisDB = 3
	cfg.Storage.RedisTTL = "1h"

	opts := cfg.StorageOptions()
	if opts.Backend != persist.BackendRedis || opts.RedisDB != 3 || opts.RedisTTL != time.Hour {
		t.Errorf("unexpected options: %+v", opts)
	}
	if opts.RedisPrefix != "debtflow:" {
		t.Errorf("expected default prefix, got %q", opts.RedisPrefix)
	}
}

func TestLoggingConfig(t *testing.T) {
	lc := LoggingConfig{Categories: map[string]bool{"persist": false}}
	if lc.IsCategoryEnabled("wizard") {
		t.Error("categories are disabled outside debug mode")
	}

	lc.DebugMode = true
	lc.Format = "json"
	if !lc.IsCategoryEnabled("wizard") {
		t.Error("unlisted category should be enabled in debug mode")
	}
	if lc.IsCategoryEnabled("persist") {
		t.Error("persist was toggled off")
	}

	s := lc.Settings()
	if !s.DebugMode || !s.JSONFormat || s.Categories["persist"] {
		t.Errorf("unexpected settings: %+v", s)
	}
}
