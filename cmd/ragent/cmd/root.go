package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/becomeliminal/ragent/app"
	"github.com/becomeliminal/ragent/config"
	"github.com/becomeliminal/ragent/logging"
)

var (
	// configPath is the YAML config file; a missing file means defaults.
	configPath string
	// logLevel overrides logging.level when set.
	logLevel string
	// outputFormat is text or json.
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "ragent",
	Short: "Answer questions from a local document collection",
	Long: `ragent indexes local text and markdown files and answers questions
from them with a bounded retrieve, compose and verify loop.

Configuration is read from a YAML file and RAGENT_* environment variables
(for example RAGENT_AGENT_MAX_ITERATIONS=4).

Examples:
  # Index the configured sources
  ragent ingest

  # Ask a question
  ragent query "What is the refund window?"

  # Show the last five answered tasks
  ragent history --limit 5

  # Serve the WebSocket API
  ragent serve --addr :8080`,
	Version:      "0.1.0",
	SilenceUsage: true,
}

// Execute runs the root command with ctx, which is cancelled on SIGINT or
// SIGTERM.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/default.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json")
}

// withApp loads config, applies overrides, builds the app and hands it to
// fn. The app and logger are released when fn returns.
func withApp(cmd *cobra.Command, override func(*config.Config), fn func(ctx context.Context, a *app.App) error) error {
	if outputFormat != "text" && outputFormat != "json" {
		return fmt.Errorf("unknown output format %q (want text or json)", outputFormat)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if override != nil {
		override(cfg)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}()

	return fn(cmd.Context(), a)
}
