package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/boucer/prospek360-recovery-engine/internal/control"
	"github.com/boucer/prospek360-recovery-engine/internal/core/config"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "recoveryd",
	Short: "Recovery engine service",
	Long: `recoveryd tracks recovery opportunities through their lifecycle and runs
the autopilot that decides and executes follow-up actions.`,
	Run: runServe,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

// loadConfig loads .env and the YAML config, then sets up logging.
func loadConfig() *config.AppConfig {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg.Logging)
	return cfg
}

func setupLogging(cfg config.LoggingConfig) {
	slogLevel := slog.LevelInfo
	switch {
	case isDebug || cfg.Level == "debug":
		slogLevel = slog.LevelDebug
	case cfg.Level == "warn":
		slogLevel = slog.LevelWarn
	case cfg.Level == "error":
		slogLevel = slog.LevelError
	}

	if cfg.Format == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})))
		return
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
}

// ErrNoSharedStore is returned by one-shot commands run without a database:
// they would only see their own empty in-memory store.
var ErrNoSharedStore = errors.New("requires database.url; the in-memory store is per-process")

func requireDatabase(cfg *config.AppConfig) error {
	if strings.TrimSpace(cfg.Database.URL) == "" {
		return ErrNoSharedStore
	}
	return nil
}

// openStoreApp builds the app for one-shot commands. Callers must Close it.
func openStoreApp(cfg *config.AppConfig) *control.App {
	if err := requireDatabase(cfg); err != nil {
		slog.Error("Cannot reach findings", "error", err)
		os.Exit(1)
	}
	return openApp(cfg)
}

func openApp(cfg *config.AppConfig) *control.App {
	app, err := control.NewApp(control.ConfigFrom(cfg))
	if err != nil {
		slog.Error("Failed to initialize recovery engine", "error", err)
		os.Exit(1)
	}
	return app
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	app := openApp(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start recovery engine", "error", err)
		os.Exit(1)
	}

	slog.Info("Recovery engine started", "config", cfgPath, "port", cfg.Server.Port)

	failed := make(chan error, 1)
	go func() { failed <- app.Wait() }()

	exitCode := 0
	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
	case err := <-failed:
		if err != nil {
			slog.Error("Recovery engine failed", "error", err)
			exitCode = 1
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		exitCode = 1
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
