package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/seedindex/internal/index"
	"github.com/JakeFAU/seedindex/internal/server"
)

// newRunCmd creates the 'run' subcommand: fetch, index, reports, archive.
func newRunCmd() *cobra.Command {
	var doArchive bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch, index, report and archive in one pass",
		Long: `Runs every stage in order. The index is built before the document
store is archived; a failed stage stops the pipeline so documents are never
archived before they were indexed. An empty document store leaves the
previous index in place.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			return withServices(cmd.Context(), env, func(ctx context.Context, app *server.App) error {
				res, err := runFetchStage(ctx, env, app.Emitter(), 0)
				if err != nil {
					return err
				}
				stats, err := runIndexStage(ctx, env, app.Emitter(), 0)
				switch {
				case errors.Is(err, index.ErrNothingToIndex):
					env.Logger.Warn("no documents to index, keeping the previous index", zap.Error(err))
				case err != nil:
					return err
				default:
					env.Logger.Info("pipeline indexed",
						zap.Int("attempted", len(res.Attempted)),
						zap.Int("documents", stats.Indexed),
						zap.Int("terms", stats.Terms),
					)
				}
				if _, err := runReportStage(env, res.Attempted); err != nil {
					return err
				}
				if !doArchive {
					return nil
				}
				_, err = runArchiveStage(env, time.Now())
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&doArchive, "archive", true, "zip and clear the document store at the end")
	return cmd
}
