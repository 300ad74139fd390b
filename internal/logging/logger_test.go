// Package logging includes tests for the zap logger helpers.
package logging

import (
	"os"
	"strings"
	"testing"
	"time"
)

// TestNewDevelopmentLogger confirms the development logger builds and logs.
func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(true)
	if err != nil {
		t.Fatalf("New(true) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
}

// TestNewProductionLogger ensures the production logger configuration succeeds.
func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(false)
	if err != nil {
		t.Fatalf("New(false) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("production logger ready")
}

// TestNewWithRunFileWritesEntries checks the run log receives log lines.
func TestNewWithRunFileWritesEntries(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	logger, path, err := NewWithRunFile(false, dir, now)
	if err != nil {
		t.Fatalf("NewWithRunFile() error = %v", err)
	}
	if !strings.HasSuffix(path, "seedindex_run_20240309_140507.log") {
		t.Fatalf("unexpected run log path %q", path)
	}
	logger.Info("written to run file")
	_ = logger.Sync()

	// #nosec G304 -- test reads from the controlled temp directory.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	if !strings.Contains(string(data), "written to run file") {
		t.Fatalf("expected run log to contain entry, got %q", data)
	}
}

// TestNewWithRunFileDisabled falls back to console only when dir is empty.
func TestNewWithRunFileDisabled(t *testing.T) {
	t.Parallel()

	logger, path, err := NewWithRunFile(true, "", time.Now())
	if err != nil {
		t.Fatalf("NewWithRunFile() error = %v", err)
	}
	if logger == nil || path != "" {
		t.Fatalf("expected console-only logger, got path %q", path)
	}
}
