package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/ragent/app"
	"github.com/becomeliminal/ragent/config"
)

var (
	queryTopK    int
	queryTimeout float64
)

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Answer a question from the indexed documents",
	Long: `Answer a question. When the index is empty and retrieval.auto_ingest is
set, the sources are ingested first.

Examples:
  ragent query "How long is the warranty?"
  ragent query --top-k 8 --timeout 10 "Who signed the contract?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVar(&queryTopK, "top-k", 0, "Passages to retrieve (overrides retrieval.top_k)")
	queryCmd.Flags().Float64Var(&queryTimeout, "timeout", 0, "Deadline in seconds (overrides agent.timeout_seconds)")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	override := func(cfg *config.Config) {
		if queryTopK > 0 {
			cfg.Retrieval.TopK = queryTopK
		}
		if queryTimeout > 0 {
			cfg.Agent.TimeoutSeconds = queryTimeout
		}
	}
	return withApp(cmd, override, func(ctx context.Context, a *app.App) error {
		return printResponse(cmd.OutOrStdout(), a.Query(ctx, text))
	})
}
