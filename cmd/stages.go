package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/seedindex/internal/archive"
	"github.com/JakeFAU/seedindex/internal/fetch"
	collyfetcher "github.com/JakeFAU/seedindex/internal/fetcher/colly"
	"github.com/JakeFAU/seedindex/internal/index"
	"github.com/JakeFAU/seedindex/internal/ledger"
	"github.com/JakeFAU/seedindex/internal/progress"
	"github.com/JakeFAU/seedindex/internal/report"
	"github.com/JakeFAU/seedindex/internal/seeds"
	"github.com/JakeFAU/seedindex/internal/server"
	"github.com/JakeFAU/seedindex/internal/storage/local"
	"github.com/JakeFAU/seedindex/internal/textproc"
)

const closeTimeout = 10 * time.Second

// runRegisterer receives the run-level progress collectors. Tests set it to
// nil so repeated commands do not collide on the default registry.
var runRegisterer prometheus.Registerer = prometheus.DefaultRegisterer

// withServices runs stage alongside the diagnostics server and flushes the
// progress hub afterwards.
func withServices(ctx context.Context, env *Env, stage func(ctx context.Context, app *server.App) error) error {
	app, err := server.Build(env.Config, env.Logger, runRegisterer)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Serve(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return stage(gctx, app)
	})
	runErr := g.Wait()

	closeCtx, closeCancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer closeCancel()
	if err := app.Close(closeCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// runFetchStage collects every seed not yet completed in the ledger.
func runFetchStage(ctx context.Context, env *Env, emitter progress.Emitter, workers int) (fetch.Result, error) {
	cfg := env.Config
	logger := env.Logger

	snap, err := ledger.Read(cfg.Paths.LogPath, logger)
	if err != nil {
		return fetch.Result{}, fmt.Errorf("read ledger: %w", err)
	}
	if snap.Malformed > 0 {
		logger.Warn("ledger contains malformed rows", zap.Int("malformed", snap.Malformed))
	}
	urls, err := seeds.NewReader(cfg.Seeds.URLColumn, logger).Read(cfg.Seeds.Files)
	if err != nil {
		return fetch.Result{}, fmt.Errorf("%w: %w", fetch.ErrSeedsUnavailable, err)
	}

	store, err := local.New(local.Config{BaseDir: cfg.Paths.OutputDir})
	if err != nil {
		return fetch.Result{}, fmt.Errorf("document store init failed: %w", err)
	}
	lw, err := ledger.OpenWriter(cfg.Paths.LogPath)
	if err != nil {
		return fetch.Result{}, fmt.Errorf("open ledger: %w", err)
	}
	defer func() {
		if cerr := lw.Close(); cerr != nil {
			logger.Warn("failed to close ledger", zap.Error(cerr))
		}
	}()

	if workers <= 0 {
		workers = cfg.Fetch.MaxWorkers
	}
	f := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      cfg.FetchTimeout(),
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
	})
	orch, err := fetch.New(
		fetch.Config{MaxWorkers: workers, Timeout: cfg.FetchTimeout()},
		f,
		store,
		lw,
		logger,
		fetch.WithEmitter(emitter),
	)
	if err != nil {
		return fetch.Result{}, err
	}
	logger.Info("document store ready", zap.String("dir", store.Dir()))
	return orch.Run(ctx, urls, snap.Completed)
}

// runIndexStage builds the index and persists it. Nothing is written when
// the build fails.
func runIndexStage(ctx context.Context, env *Env, emitter progress.Emitter, shards int) (index.Stats, error) {
	cfg := env.Config
	logger := env.Logger

	docs, err := local.Open(cfg.Paths.OutputDir)
	if err != nil {
		return index.Stats{}, fmt.Errorf("open document store: %w", err)
	}
	tok := textproc.New(textproc.Config{
		Language:      cfg.Index.Language,
		StopwordsPath: cfg.Index.StopwordsPath,
		Logger:        logger,
	})
	if shards <= 0 {
		shards = cfg.Index.Shards
	}
	builder := index.NewBuilder(tok, logger, index.WithShards(shards), index.WithEmitter(emitter))
	res, err := builder.Build(ctx, cfg.Paths.LogPath, docs)
	if err != nil {
		return index.Stats{}, err
	}
	if err := index.Save(cfg.Paths.IndexDir, res.Index, res.Documents, cfg.Index.Format); err != nil {
		return res.Stats, fmt.Errorf("save index: %w", err)
	}
	indexPath, docMapPath, _ := index.Paths(cfg.Paths.IndexDir, cfg.Index.Format)
	logger.Info("index saved",
		zap.String("index", indexPath),
		zap.String("document_map", docMapPath),
		zap.Bool("degraded_tokenizer", tok.Degraded()),
	)
	return res.Stats, nil
}

// runReportStage writes the consolidated reports and, when attempted is
// non-empty, the list of this session's failures.
func runReportStage(env *Env, attempted []string) (report.Summary, error) {
	cfg := env.Config
	sum, err := report.Consolidate(cfg.Paths.LogPath, cfg.Paths.ReportDir, env.Logger)
	if err != nil {
		return report.Summary{}, fmt.Errorf("consolidate reports: %w", err)
	}
	if cfg.Paths.ErrorListPath != "" {
		if _, err := report.SessionErrors(cfg.Paths.LogPath, attempted, cfg.Paths.ErrorListPath, env.Logger); err != nil {
			return sum, fmt.Errorf("session error list: %w", err)
		}
	}
	return sum, nil
}

// runArchiveStage zips and clears the document store. An empty store is a
// warning, not a failure.
func runArchiveStage(env *Env, now time.Time) (string, error) {
	cfg := env.Config
	dest, err := archive.New(env.Logger).Archive(cfg.Paths.OutputDir, cfg.Paths.ArchiveDir, now)
	if errors.Is(err, archive.ErrEmptyStore) {
		return "", nil
	}
	return dest, err
}

// postProcess runs the steps that follow a completed fetch stage.
func postProcess(env *Env, attempted []string, doArchive bool) error {
	if _, err := runReportStage(env, attempted); err != nil {
		return err
	}
	if !doArchive {
		env.Logger.Info("archive step skipped")
		return nil
	}
	_, err := runArchiveStage(env, time.Now())
	return err
}
