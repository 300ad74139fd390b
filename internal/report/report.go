// Package report derives the consolidated success/error reports and the
// per-session error list from the collection ledger.
package report

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/JakeFAU/seedindex/internal/ledger"
)

// Report file names written under the output directory.
const (
	SuccessFile = "relatorio_sucesso.csv"
	ErrorFile   = "relatorio_erros.csv"
)

// Summary describes the consolidated reports.
type Summary struct {
	SuccessPath  string `json:"success_path,omitempty"`
	ErrorPath    string `json:"error_path,omitempty"`
	Total        int    `json:"total"`
	SuccessCount int    `json:"success_count"`
	ErrorCount   int    `json:"error_count"`
}

// Consolidate keeps the latest row per URL and splits the result into a
// success report and an error report (errors and fatal errors), both sorted
// by URL. A missing ledger yields a zero Summary and writes nothing.
func Consolidate(ledgerPath, outDir string, logger *zap.Logger) (Summary, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := os.Stat(ledgerPath); errors.Is(err, os.ErrNotExist) {
		logger.Warn("ledger not found, no reports written", zap.String("path", ledgerPath))
		return Summary{}, nil
	}
	snap, err := ledger.Read(ledgerPath, logger)
	if err != nil {
		return Summary{}, err
	}

	latest := Latest(snap.Entries)
	urls := make([]string, 0, len(latest))
	for u := range latest {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	var ok, bad []ledger.Entry
	for _, u := range urls {
		e := latest[u]
		if e.Status.IsSuccess() {
			ok = append(ok, e)
		} else {
			bad = append(bad, e)
		}
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Summary{}, fmt.Errorf("create report dir: %w", err)
	}
	sum := Summary{
		SuccessPath:  filepath.Join(outDir, SuccessFile),
		ErrorPath:    filepath.Join(outDir, ErrorFile),
		Total:        len(latest),
		SuccessCount: len(ok),
		ErrorCount:   len(bad),
	}
	if err := writeEntries(sum.SuccessPath, ok); err != nil {
		return Summary{}, err
	}
	if err := writeEntries(sum.ErrorPath, bad); err != nil {
		return Summary{}, err
	}
	logger.Info("reports written",
		zap.String("success_path", sum.SuccessPath),
		zap.Int("success", sum.SuccessCount),
		zap.String("error_path", sum.ErrorPath),
		zap.Int("errors", sum.ErrorCount),
	)
	return sum, nil
}

// SessionErrors writes, one per line, each attempted URL whose latest ledger
// row is not a success. Nothing is written when there are none. It returns
// the number of URLs listed.
func SessionErrors(ledgerPath string, attempted []string, outPath string, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(attempted) == 0 {
		return 0, nil
	}
	snap, err := ledger.Read(ledgerPath, logger)
	if err != nil {
		return 0, err
	}
	latest := Latest(snap.Entries)

	var failed []string
	seen := make(map[string]struct{}, len(attempted))
	for _, u := range attempted {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		if e, ok := latest[u]; ok && !e.Status.IsSuccess() {
			failed = append(failed, u)
		}
	}
	if len(failed) == 0 {
		return 0, nil
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return 0, fmt.Errorf("create error list dir: %w", err)
	}
	// #nosec G304 -- path comes from operator configuration.
	f, err := os.Create(outPath)
	if err != nil {
		return 0, fmt.Errorf("create error list: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, u := range failed {
		if _, err := w.WriteString(u + "\n"); err != nil {
			_ = f.Close()
			return 0, fmt.Errorf("write error list: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return 0, fmt.Errorf("write error list: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close error list: %w", err)
	}
	logger.Info("session error list written", zap.String("path", outPath), zap.Int("urls", len(failed)))
	return len(failed), nil
}

// Latest returns the last row per URL.
func Latest(entries []ledger.Entry) map[string]ledger.Entry {
	out := make(map[string]ledger.Entry, len(entries))
	for _, e := range entries {
		out[e.OriginalURL] = e
	}
	return out
}

func writeEntries(path string, entries []ledger.Entry) error {
	// #nosec G304 -- path comes from operator configuration.
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(ledger.Header); err != nil {
		_ = f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	for _, e := range entries {
		if err := w.Write(e.Record()); err != nil {
			_ = f.Close()
			return fmt.Errorf("write report: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}
