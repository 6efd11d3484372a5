// Command savevaultd is the sync-engine daemon: it loads configuration,
// starts a filesystem watcher for every game with sync enabled, and
// reconciles changes against the configured storage backend until it
// receives a termination signal.
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/savevault/syncengine/internal/backendfactory"
	"github.com/savevault/syncengine/internal/config"
	"github.com/savevault/syncengine/internal/daemon"
	"github.com/savevault/syncengine/internal/observability"
	"github.com/savevault/syncengine/internal/supervisor"
)

var (
	configPath  string
	envFile     string
	jsonLogging bool
	useWatchdog bool
)

func main() {
	root := &cobra.Command{
		Use:   "savevaultd",
		Short: "Versioned, bidirectional save-file sync daemon",
		RunE:  run,
	}
	root.Flags().StringVar(&configPath, "config", "", "path to the sync config file (default: $HOME/.savevault.yaml)")
	root.Flags().StringVar(&envFile, "env-file", "", "optional .env file to load before startup (dev credential loading)")
	root.Flags().BoolVar(&jsonLogging, "json-logging", false, "emit structured logs as JSON instead of text")
	root.Flags().BoolVar(&useWatchdog, "systemd-notify", false, "announce readiness/heartbeat via NOTIFY_SOCKET if present")

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("loading env file %s: %w", envFile, err)
		}
	}

	logger := observability.NewLogger(jsonLogging)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := context.Background()
	backend, err := backendfactory.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("constructing storage backend: %w", err)
	}
	if !backend.HealthCheck(ctx) {
		logger.Warn("storage backend health check failed at startup")
	}

	var notifier daemon.Notifier
	if useWatchdog {
		notifier = daemon.EnvNotifier{}
	}

	sup := supervisor.New(logger)
	d := daemon.New(configPath, backend, sup, notifier, logger)

	logger.Info("starting savevaultd", "games", len(cfg.Games), "backend", cfg.Storage.Backend)
	if err := d.Run(ctx); err != nil {
		return fmt.Errorf("daemon loop: %w", err)
	}
	return nil
}
