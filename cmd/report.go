package cmd

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/seedindex/internal/ledger"
	"github.com/JakeFAU/seedindex/internal/report"
)

// newReportCmd creates the 'report' subcommand.
func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Write the consolidated success and error reports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			sum, err := report.Consolidate(env.Config.Paths.LogPath, env.Config.Paths.ReportDir, env.Logger)
			if err != nil {
				return err
			}
			return printJSON(cmd, sum)
		},
	}
}

// newDiagnoseCmd creates the 'diagnose' subcommand.
func newDiagnoseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Print row counts of the collection ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			sum, err := ledger.Summarize(env.Config.Paths.LogPath, env.Logger)
			if err != nil {
				return err
			}
			env.Logger.Info("ledger summary",
				zap.String("path", env.Config.Paths.LogPath),
				zap.Int("rows", sum.Rows),
				zap.Int("unique_success_urls", sum.UniqueSuccessURLs),
				zap.Int("success_rows", sum.SuccessRows),
				zap.Int("error_rows", sum.ErrorRows),
				zap.Int("fatal_rows", sum.FatalRows),
				zap.Int("malformed", sum.Malformed),
			)
			return printJSON(cmd, sum)
		},
	}
}

// newArchiveCmd creates the 'archive' subcommand.
func newArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Zip the document store and clear it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			dest, err := runArchiveStage(env, time.Now())
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{"archive": dest})
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
