package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/seedindex/internal/server"
)

type fetchOptions struct {
	seedFiles   []string
	workers     int
	postProcess bool
	archive     bool
}

// newFetchCmd creates the 'fetch' subcommand, the collection stage.
func newFetchCmd() *cobra.Command {
	opts := &fetchOptions{}
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download every seed URL not yet completed",
		Long: `Reads the seed files, skips every URL the ledger already records as a
success, and downloads the rest with bounded concurrency. Each attempt
appends one ledger row. Afterwards the consolidated reports, the session
error list and the archive are produced unless disabled.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFetchCommand(cmd, opts)
		},
	}
	cmd.Flags().StringSliceVar(&opts.seedFiles, "seeds", nil, "seed files, overriding seeds.files")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "concurrent requests, overriding fetch.max_workers")
	cmd.Flags().BoolVar(&opts.postProcess, "post-process", true, "write reports and archive after fetching")
	cmd.Flags().BoolVar(&opts.archive, "archive", true, "zip and clear the document store after fetching")
	return cmd
}

func runFetchCommand(cmd *cobra.Command, opts *fetchOptions) error {
	env, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	if len(opts.seedFiles) > 0 {
		env.Config.Seeds.Files = opts.seedFiles
	}

	return withServices(cmd.Context(), env, func(ctx context.Context, app *server.App) error {
		res, err := runFetchStage(ctx, env, app.Emitter(), opts.workers)
		if err != nil {
			return err
		}
		env.Logger.Info("fetch command finished",
			zap.Int("attempted", len(res.Attempted)),
			zap.Int("skipped", res.Skipped),
		)
		if !opts.postProcess {
			return nil
		}
		return postProcess(env, res.Attempted, opts.archive)
	})
}
