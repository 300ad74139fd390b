// Package cmd defines and implements the CLI commands for the seedindex executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/seedindex/internal/config"
	"github.com/JakeFAU/seedindex/internal/logging"
)

var cfgFile string

// envKeyType is the key for storing the command environment in the context.
type envKeyType struct{}

// Env is the configuration and logger shared by every subcommand.
type Env struct {
	Config config.Config
	Logger *zap.Logger
}

// newEnv is the environment factory. It's a variable so tests can replace it.
var newEnv = func(path string) (*Env, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, runLog, err := logging.NewWithRunFile(cfg.Logging.Development, cfg.Paths.RunLogDir, time.Now())
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	if runLog != "" {
		logger.Info("run log enabled", zap.String("path", runLog))
	}
	return &Env{Config: cfg, Logger: logger}, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seedindex",
		Short: "Resumable seed fetcher and inverted index builder.",
		Long: `seedindex downloads a list of seed URLs with bounded concurrency,
records every attempt in an append-only ledger so interrupted runs resume
where they stopped, and builds a stemmed inverted index over the pages
that were fetched successfully.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			env, err := newEnv(cfgFile)
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(env.Logger)
			cmd.SetContext(context.WithValue(cmd.Context(), envKeyType{}, env))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if env, ok := cmd.Context().Value(envKeyType{}).(*Env); ok && env != nil {
				_ = env.Logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(
		newFetchCmd(),
		newIndexCmd(),
		newReportCmd(),
		newDiagnoseCmd(),
		newArchiveCmd(),
		newRunCmd(),
	)
	return cmd
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the running
// stage; work already recorded in the ledger is kept.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "seedindex: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func resolveEnv(ctx context.Context) (*Env, error) {
	env, ok := ctx.Value(envKeyType{}).(*Env)
	if !ok || env == nil {
		return nil, errors.New("command environment not initialized")
	}
	return env, nil
}
