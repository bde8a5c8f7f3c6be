package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/ragent/app"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index the configured document sources",
	Long: `Walk retrieval.sources, chunk every matching file and embed the chunks.

Unchanged chunks keep their vectors, so re-running ingest is cheap.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	return withApp(cmd, nil, func(ctx context.Context, a *app.App) error {
		summary, err := a.Ingest(ctx)
		if err != nil {
			return err
		}
		return printSummary(cmd.OutOrStdout(), summary)
	})
}
