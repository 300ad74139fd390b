// Package seeds reads seed URL lists from delimited files.
package seeds

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/seedindex/internal/ledger"
)

var (
	// ErrNoSeeds is returned when none of the seed files could be read.
	ErrNoSeeds = errors.New("no seed file could be read")
	// ErrMissingColumn marks a seed file without the configured URL column.
	ErrMissingColumn = errors.New("url column not found")
)

// DefaultColumn is the header of the URL column.
const DefaultColumn = "URL"

// Normalize trims raw and defaults its scheme to http://.
func Normalize(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	lower := strings.ToLower(u)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return u
	}
	return "http://" + u
}

// Reader loads seeds from one or more files.
type Reader struct {
	column string
	logger *zap.Logger
}

// NewReader builds a Reader for the given URL column.
func NewReader(column string, logger *zap.Logger) *Reader {
	if strings.TrimSpace(column) == "" {
		column = DefaultColumn
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{column: column, logger: logger}
}

// Read concatenates the URL columns of files, normalizes each value and
// removes duplicates, keeping the first occurrence. Files that fail to parse
// are logged and skipped; ErrNoSeeds is returned only when every file fails.
func (r *Reader) Read(files []string) ([]string, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no seed files configured", ErrNoSeeds)
	}
	seen := make(map[string]struct{})
	var (
		urls  []string
		read  int
		total int
		errs  []error
	)
	for _, path := range files {
		raw, err := r.readFile(path)
		if err != nil {
			r.logger.Error("seed file unreadable", zap.String("path", path), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		read++
		for _, v := range raw {
			u := Normalize(v)
			if u == "" {
				continue
			}
			total++
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			urls = append(urls, u)
		}
	}
	if read == 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoSeeds, errors.Join(errs...))
	}
	if removed := total - len(urls); removed > 0 {
		r.logger.Info("duplicate seed urls removed", zap.Int("removed", removed))
	}
	return urls, nil
}

func (r *Reader) readFile(path string) ([]string, error) {
	// #nosec G304 -- seed paths come from operator configuration.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seeds: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read seed header %s: %w", path, err)
	}
	col := -1
	for i, name := range header {
		if strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) == r.column {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("%w: %q in %s", ErrMissingColumn, r.column, path)
	}

	var out []string
	skipped := 0
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				skipped++
				continue
			}
			return nil, fmt.Errorf("scan seeds %s: %w", path, err)
		}
		// short rows keep their leading cells; only rows without the URL cell
		// or with more cells than the header are skipped
		if len(record) > len(header) || col >= len(record) {
			skipped++
			continue
		}
		out = append(out, record[col])
	}
	if skipped > 0 {
		r.logger.Warn("skipped malformed seed rows", zap.String("path", path), zap.Int("rows", skipped))
	}
	return out, nil
}

// Pending returns the seeds not yet completed, preserving order.
func Pending(all []string, completed ledger.URLSet) []string {
	out := make([]string, 0, len(all))
	for _, u := range all {
		if completed.Has(u) {
			continue
		}
		out = append(out, u)
	}
	return out
}
