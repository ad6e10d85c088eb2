package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"debtflow/internal/calc"
	"debtflow/internal/persist"
)

// DefaultDataDir is the workspace-relative directory for drafts, logs and config.
const DefaultDataDir = ".debtflow"

// DefaultConfigFile is the config file name inside the data directory.
const DefaultConfigFile = "config.yaml"

// Config holds all debtflow configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Backend API
	API APIConfig `yaml:"api"`

	// Draft and gateway-return persistence
	Storage StorageConfig `yaml:"storage"`

	// Wizard behaviour
	Wizard WizardConfig `yaml:"wizard"`

	// Payment gateway authorization round trip
	Gateway GatewayConfig `yaml:"gateway"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig configures the backend HTTP client.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	Timeout string `yaml:"timeout"`
	// Email of the signed-in user; debtor or creditor depending on relationship.
	UserEmail string `yaml:"user_email"`
	UserName  string `yaml:"user_name"`
}

// StorageConfig selects the snapshot backend.
type StorageConfig struct {
	Backend string `yaml:"backend"` // file, sqlite, redis, memory
	Dir     string `yaml:"dir"`

	SQLitePath   string `yaml:"sqlite_path"`
	SQLiteDriver string `yaml:"sqlite_driver"` // sqlite (pure Go) or sqlite3 (cgo)

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
	RedisTTL      string `yaml:"redis_ttl"`
}

// WizardConfig tunes the wizard.
type WizardConfig struct {
	DebounceWindow string `yaml:"debounce_window"`
	MonthEndPolicy string `yaml:"month_end_policy"` // clamp, overflow
}

// GatewayConfig configures the local callback listener and recovery records.
type GatewayConfig struct {
	CallbackAddr   string `yaml:"callback_addr"`
	MaxRecoveryAge string `yaml:"max_recovery_age"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "debtflow",
		Version: "0.4.0",

		API: APIConfig{
			BaseURL: "http://localhost:3000/api",
			Timeout: "15s",
		},

		Storage: StorageConfig{
			Backend:      persist.BackendFile,
			Dir:          filepath.Join(DefaultDataDir, "drafts"),
			SQLitePath:   filepath.Join(DefaultDataDir, "drafts.db"),
			SQLiteDriver: persist.DriverModernc,
			RedisAddr:    "localhost:6379",
			RedisPrefix:  "debtflow:",
			RedisTTL:     "168h",
		},

		Wizard: WizardConfig{
			DebounceWindow: "300ms",
			MonthEndPolicy: string(calc.PolicyClamp),
		},

		Gateway: GatewayConfig{
			CallbackAddr:   "127.0.0.1:8765",
			MaxRecoveryAge: "2h",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns the config path under dataDir.
func DefaultPath(dataDir string) string {
	if dataDir == "" {
		dataDir = DefaultDataDir
	}
	return filepath.Join(dataDir, DefaultConfigFile)
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("DEBTFLOW_API_URL"); url != "" {
		c.API.BaseURL = url
	}
	if token := os.Getenv("DEBTFLOW_API_TOKEN"); token != "" {
		c.API.Token = token
	}
	if email := os.Getenv("DEBTFLOW_USER_EMAIL"); email != "" {
		c.API.UserEmail = email
	}

	if backend := os.Getenv("DEBTFLOW_STORAGE_BACKEND"); backend != "" {
		c.Storage.Backend = backend
	}
	if addr := os.Getenv("DEBTFLOW_REDIS_ADDR"); addr != "" {
		c.Storage.RedisAddr = addr
	}
	if db := os.Getenv("DEBTFLOW_REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			c.Storage.RedisDB = n
		}
	}

	// Data dir moves both the file backend and the sqlite database.
	if dir := os.Getenv("DEBTFLOW_DATA_DIR"); dir != "" {
		c.Storage.Dir = filepath.Join(dir, "drafts")
		c.Storage.SQLitePath = filepath.Join(dir, "drafts.db")
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetAPITimeout returns the API request timeout as a duration.
func (c *Config) GetAPITimeout() time.Duration {
	return parseDuration(c.API.Timeout, 15*time.Second)
}

// GetDebounceWindow returns the snapshot debounce window as a duration.
func (c *Config) GetDebounceWindow() time.Duration {
	return parseDuration(c.Wizard.DebounceWindow, 300*time.Millisecond)
}

// GetMaxRecoveryAge returns how long a gateway recovery record stays usable.
func (c *Config) GetMaxRecoveryAge() time.Duration {
	return parseDuration(c.Gateway.MaxRecoveryAge, 2*time.Hour)
}

// GetRedisTTL returns the snapshot key TTL. Zero means keys never expire.
func (c *Config) GetRedisTTL() time.Duration {
	if strings.TrimSpace(c.Storage.RedisTTL) == "" {
		return 0
	}
	return parseDuration(c.Storage.RedisTTL, 0)
}

// MonthEndPolicy returns the parsed policy, clamp when unset or invalid.
func (c *Config) MonthEndPolicy() calc.MonthEndPolicy {
	p, err := calc.ParsePolicy(c.Wizard.MonthEndPolicy)
	if err != nil {
		return calc.PolicyClamp
	}
	return p
}

// StorageOptions maps the storage section onto persist.Options.
func (c *Config) StorageOptions() persist.Options {
	return persist.Options{
		Backend:       c.Storage.Backend,
		Dir:           c.Storage.Dir,
		SQLitePath:    c.Storage.SQLitePath,
		SQLiteDriver:  c.Storage.SQLiteDriver,
		RedisAddr:     c.Storage.RedisAddr,
		RedisPassword: c.Storage.RedisPassword,
		RedisDB:       c.Storage.RedisDB,
		RedisPrefix:   c.Storage.RedisPrefix,
		RedisTTL:      c.GetRedisTTL(),
	}
}

// ValidBackends lists all supported storage backends.
var ValidBackends = []string{persist.BackendFile, persist.BackendSQLite, persist.BackendRedis, persist.BackendMemory}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return fmt.Errorf("API base URL not configured (set api.base_url or DEBTFLOW_API_URL)")
	}

	validBackend := false
	for _, b := range ValidBackends {
		if strings.EqualFold(c.Storage.Backend, b) {
			validBackend = true
			break
		}
	}
	if !validBackend {
		return fmt.Errorf("invalid storage backend: %s (valid: %v)", c.Storage.Backend, ValidBackends)
	}

	switch c.Storage.SQLiteDriver {
	case "", persist.DriverMattn, persist.DriverModernc:
	default:
		return fmt.Errorf("invalid sqlite driver: %s (valid: %s, %s)", c.Storage.SQLiteDriver, persist.DriverModernc, persist.DriverMattn)
	}

	if _, err := calc.ParsePolicy(c.Wizard.MonthEndPolicy); err != nil {
		return fmt.Errorf("wizard.month_end_policy: %w", err)
	}

	return nil
}
