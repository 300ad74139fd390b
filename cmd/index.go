package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/seedindex/internal/server"
)

// newIndexCmd creates the 'index' subcommand.
func newIndexCmd() *cobra.Command {
	var shards int
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the inverted index from fetched documents",
		Long: `Reads the ledger's successful rows, tokenizes every document still
present in the document store and writes the inverted index and document
map to paths.index_dir. Nothing is written if the build fails.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			return withServices(cmd.Context(), env, func(ctx context.Context, app *server.App) error {
				_, err := runIndexStage(ctx, env, app.Emitter(), shards)
				return err
			})
		},
	}
	cmd.Flags().IntVar(&shards, "shards", 0, "tokenizer goroutines, overriding index.shards")
	return cmd
}
