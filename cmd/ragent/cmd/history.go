package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/ragent/app"
)

var (
	historyLimit int
	similarLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently answered tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, nil, func(ctx context.Context, a *app.App) error {
			logs, err := a.History(ctx, historyLimit)
			if err != nil {
				return err
			}
			return printTaskLogs(cmd.OutOrStdout(), logs)
		})
	},
}

var similarCmd = &cobra.Command{
	Use:   "similar <text>",
	Short: "Find past tasks with queries like text",
	Long: `Find past tasks whose queries resemble text. Requires memory.backend
set to chromem.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		return withApp(cmd, nil, func(ctx context.Context, a *app.App) error {
			logs, err := a.Similar(ctx, text, similarLimit)
			if err != nil {
				return err
			}
			return printTaskLogs(cmd.OutOrStdout(), logs)
		})
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 10, "Maximum number of tasks to show")
	similarCmd.Flags().IntVarP(&similarLimit, "limit", "l", 5, "Maximum number of tasks to show")
	rootCmd.AddCommand(historyCmd, similarCmd)
}
