package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/becomeliminal/ragent/app"
	"github.com/becomeliminal/ragent/config"
	"github.com/becomeliminal/ragent/server"
)

// retentionInterval is how often serve applies the memory retention policy.
const retentionInterval = 24 * time.Hour

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the agent over WebSocket",
	Long: `Serve the agent on /ws, with /health and Prometheus /metrics.

Clients send {"type":"query","id":"1","content":"..."}; other types are
stats, history, ingest and clear.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	override := func(cfg *config.Config) {
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}
	}
	return withApp(cmd, override, func(ctx context.Context, a *app.App) error {
		logger := a.Logger()
		srv, err := server.New(server.Config{Agent: a, Logger: logger.Named("server")})
		if err != nil {
			return err
		}

		g, ctx := errgroup.WithContext(ctx)
		if a.Config().Memory.Enabled {
			g.Go(func() error {
				retain(ctx, a, logger)
				return nil
			})
		}
		g.Go(func() error {
			return srv.Run(ctx, a.Config().Server.Addr)
		})
		return g.Wait()
	})
}

// retain runs the retention policy now and then every retentionInterval
// until ctx is done.
func retain(ctx context.Context, a *app.App, logger *zap.Logger) {
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()
	for {
		n, err := a.Cleanup(ctx)
		if err != nil {
			logger.Warn("memory cleanup failed", zap.Error(err))
		} else if n > 0 {
			logger.Info("memory cleanup", zap.Int("purged", n))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
