// Package logging provides zap logger helpers.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger configured for development or production.
func New(development bool) (*zap.Logger, error) {
	cfg := baseConfig(development)
	logger, err := cfg.Build()
	if err != nil {
		if development {
			return nil, fmt.Errorf("build dev logger: %w", err)
		}
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, nil
}

// NewWithRunFile behaves like New but also writes every entry to a
// timestamped run log (seedindex_run_<YYYYmmdd_HHMMSS>.log) inside dir.
// The created file path is returned alongside the logger.
func NewWithRunFile(development bool, dir string, now time.Time) (*zap.Logger, string, error) {
	if dir == "" {
		logger, err := New(development)
		return logger, "", err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, "", fmt.Errorf("create run log dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("seedindex_run_%s.log", now.Format("20060102_150405")))

	cfg := baseConfig(development)
	cfg.OutputPaths = append(cfg.OutputPaths, path)
	logger, err := cfg.Build()
	if err != nil {
		return nil, "", fmt.Errorf("build run logger: %w", err)
	}
	return logger, path, nil
}

func baseConfig(development bool) zap.Config {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = false
	cfg.EncoderConfig.TimeKey = "ts"
	return cfg
}
