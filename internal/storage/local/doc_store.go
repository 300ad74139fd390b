// Package local implements the filesystem document store holding raw fetched
// bodies under content-addressed names.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local document store.
type Config struct {
	// BaseDir is the root directory where documents are stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// DocStore writes and reads raw documents on the local filesystem.
type DocStore struct {
	baseDir string
}

// New creates the store, creating BaseDir if needed and probing that it is writable.
func New(cfg Config) (*DocStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &DocStore{baseDir: cfg.BaseDir}, nil
}

// Open returns a read-only view over an existing directory. Unlike New it
// neither creates the directory nor requires write access.
func Open(dir string) (*DocStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	return &DocStore{baseDir: dir}, nil
}

// Dir returns the store root.
func (s *DocStore) Dir() string {
	return s.baseDir
}

// Path resolves name inside the store, rejecting names that escape it.
func (s *DocStore) Path(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("name is required")
	}
	cleanBase := filepath.Clean(s.baseDir)
	full := filepath.Clean(filepath.Join(s.baseDir, name))
	if !strings.HasPrefix(full, cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return full, nil
}

// Put writes body under name, replacing any previous content.
func (s *DocStore) Put(ctx context.Context, name string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	full, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return fmt.Errorf("failed to create parent directories: %w", err)
	}
	if err := os.WriteFile(full, body, 0o600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// Read returns the stored bytes for name.
func (s *DocStore) Read(name string) ([]byte, error) {
	full, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	// #nosec G304 -- full is confined to baseDir by Path.
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// Filenames lists the regular files currently present in the store root.
// A missing root is reported as an empty store.
func (s *DocStore) Filenames() (map[string]struct{}, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]struct{}{}, nil
		}
		return nil, fmt.Errorf("list %s: %w", s.baseDir, err)
	}
	names := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names[entry.Name()] = struct{}{}
	}
	return names, nil
}
