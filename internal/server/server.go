// Package server assembles the long-lived pipeline services: the progress hub
// with its sinks and the optional diagnostics HTTP listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/seedindex/internal/api"
	"github.com/JakeFAU/seedindex/internal/config"
	"github.com/JakeFAU/seedindex/internal/progress"
	progresssinks "github.com/JakeFAU/seedindex/internal/progress/sinks"
)

const shutdownTimeout = 10 * time.Second

// App contains the services shared by every pipeline stage.
type App struct {
	cfg         config.Config
	logger      *zap.Logger
	progressHub *progress.Hub
	tracker     *progress.Tracker
	apiServer   *api.Server
}

// Build creates the progress hub and diagnostics server. Run metrics are
// registered on reg; a nil reg skips the Prometheus sink.
func Build(cfg config.Config, logger *zap.Logger, reg prometheus.Registerer) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{
		cfg:     cfg,
		logger:  logger,
		tracker: progress.NewTracker(),
	}

	sinks := []progress.Sink{
		app.tracker,
		progresssinks.NewLogSink(logger.Named("progress")),
	}
	if reg != nil {
		promSink, err := progresssinks.NewPrometheusSink(reg)
		if err != nil {
			return nil, fmt.Errorf("progress metrics init failed: %w", err)
		}
		sinks = append(sinks, promSink)
	}
	app.progressHub = progress.NewHub(progress.Config{Logger: logger.Named("progress")}, sinks...)

	app.apiServer = api.NewServer(
		api.NewDiagnosticsHandler(cfg.Paths.LogPath, app.tracker, logger.Named("api")),
		logger.Named("api"),
	)
	return app, nil
}

// Emitter returns the hub stages report progress to.
func (a *App) Emitter() progress.Emitter {
	return a.progressHub
}

// Tracker returns the live snapshot source.
func (a *App) Tracker() *progress.Tracker {
	return a.tracker
}

// Handler returns the diagnostics router.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Serve runs the diagnostics listener until ctx is canceled. It returns
// immediately when no address is configured.
func (a *App) Serve(ctx context.Context) error {
	addr := a.cfg.Diagnostics.Addr
	if addr == "" {
		return nil
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("diagnostics server started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("diagnostics server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	return nil
}

// Close flushes pending progress to the sinks.
func (a *App) Close(ctx context.Context) error {
	if err := a.progressHub.Close(ctx); err != nil {
		a.logger.Warn("progress hub close failed", zap.Error(err))
		return err
	}
	a.logger.Debug("shutdown complete")
	return nil
}
