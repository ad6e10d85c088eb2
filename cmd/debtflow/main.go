package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"debtflow/internal/config"
	"debtflow/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	dataDir    string
	configPath string
	timeout    time.Duration

	// Logger
	logger *zap.Logger

	// Loaded in PersistentPreRunE.
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "debtflow",
	Short: "debtflow - register debts, loans and subscriptions from the terminal",
	Long: `debtflow walks you through creating a movement: pick a wallet, choose PIX
or the payment gateway, describe who owes whom and how much, then confirm.

Drafts survive restarts. A gateway authorization round trip brings you back
to the step you left.

Run without arguments to start the interactive wizard.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = loadConfig()
		if err != nil {
			return err
		}
		settings := cfg.Logging.Settings()
		if verbose {
			settings.DebugMode = true
			settings.Level = "debug"
		}
		if err := logging.Initialize(dataDir, settings); err != nil {
			logger.Warn("category logging disabled", zap.Error(err))
		}
		if err := logging.InitAudit(); err != nil {
			logger.Warn("audit logging disabled", zap.Error(err))
		}
		logging.Boot("debtflow starting: command=%s data_dir=%s backend=%s", cmd.CommandPath(), dataDir, cfg.Storage.Backend)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAudit()
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runNew,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", config.DefaultDataDir, "Data directory for config, drafts and logs")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: <data-dir>/config.yaml)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Timeout for one-shot commands")

	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(draftCmd)
	rootCmd.AddCommand(calcCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPath(dataDir)
}

// loadConfig reads the config file and rebases relative storage paths onto
// the data directory when it is not the default.
func loadConfig() (*config.Config, error) {
	c, err := config.Load(resolvedConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dataDir != config.DefaultDataDir && os.Getenv("DEBTFLOW_DATA_DIR") == "" {
		def := config.DefaultConfig()
		if c.Storage.Dir == def.Storage.Dir {
			c.Storage.Dir = filepath.Join(dataDir, "drafts")
		}
		if c.Storage.SQLitePath == def.Storage.SQLitePath {
			c.Storage.SQLitePath = filepath.Join(dataDir, "drafts.db")
		}
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM or after d
// when d is positive.
func signalContext(d time.Duration) (context.Context, context.CancelFunc) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if d > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), d)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			if logger != nil {
				logger.Info("Received shutdown signal")
			}
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
