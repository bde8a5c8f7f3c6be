package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/ragent/app"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index and memory statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, nil, func(ctx context.Context, a *app.App) error {
			st, err := a.Stats(ctx)
			if err != nil {
				return err
			}
			return printStats(cmd.OutOrStdout(), st)
		})
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
