package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/ragent/app"
	"github.com/becomeliminal/ragent/config"
)

var (
	cleanupDays      int
	cleanupThreshold float64
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Purge old, low-importance task logs",
	Long: `Delete task logs older than memory.cleanup_days whose importance is below
memory.importance_threshold.`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 0, "Retention in days (overrides memory.cleanup_days)")
	cleanupCmd.Flags().Float64Var(&cleanupThreshold, "threshold", -1, "Importance threshold (overrides memory.importance_threshold)")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	override := func(cfg *config.Config) {
		if cleanupDays > 0 {
			cfg.Memory.CleanupDays = cleanupDays
		}
		if cleanupThreshold >= 0 {
			cfg.Memory.ImportanceThreshold = cleanupThreshold
		}
	}
	return withApp(cmd, override, func(ctx context.Context, a *app.App) error {
		n, err := a.Cleanup(ctx)
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(cmd.OutOrStdout(), map[string]int{"purged": n})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Purged %d task logs\n", n)
		return nil
	})
}
