// Package ledger reads and appends the completion ledger, the append-only
// record of every fetch attempt and its outcome.
package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
)

// ErrMalformedRow marks a row that cannot be decoded into an Entry.
var ErrMalformedRow = errors.New("malformed ledger row")

// Header is the column layout of the ledger file.
var Header = []string{"original_url", "saved_filename", "status"}

// Entry is one fetch attempt.
type Entry struct {
	OriginalURL   string
	SavedFilename string
	Status        Status
}

// Record renders the entry as ledger columns.
func (e Entry) Record() []string {
	return []string{e.OriginalURL, e.SavedFilename, e.Status.String()}
}

// URLSet is a set of URLs.
type URLSet map[string]struct{}

// Has reports whether u is in the set.
func (s URLSet) Has(u string) bool {
	_, ok := s[u]
	return ok
}

// Snapshot is the decoded content of a ledger file.
type Snapshot struct {
	// Entries holds every well-formed row in file order.
	Entries []Entry
	// Completed holds each URL with at least one success row.
	Completed URLSet
	// Malformed counts skipped rows.
	Malformed int
	// NeedsHeader is true when the file is missing or empty.
	NeedsHeader bool
}

// Successes returns the first success row per URL, in file order.
func (s Snapshot) Successes() []Entry {
	seen := make(URLSet, len(s.Completed))
	out := make([]Entry, 0, len(s.Completed))
	for _, e := range s.Entries {
		if !e.Status.IsSuccess() || seen.Has(e.OriginalURL) {
			continue
		}
		seen[e.OriginalURL] = struct{}{}
		out = append(out, e)
	}
	return out
}

// Read loads the ledger at path. A missing file yields an empty snapshot with
// NeedsHeader set. Malformed rows are skipped and logged; only failures to
// open or scan the file are returned.
func Read(path string, logger *zap.Logger) (Snapshot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	snap := Snapshot{Completed: URLSet{}}

	// #nosec G304 -- ledger path comes from operator configuration.
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			snap.NeedsHeader = true
			return snap, nil
		}
		return Snapshot{}, fmt.Errorf("open ledger: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	info, err := f.Stat()
	if err != nil {
		return Snapshot{}, fmt.Errorf("stat ledger: %w", err)
	}
	if info.Size() == 0 {
		snap.NeedsHeader = true
		return snap, nil
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = true

	first := true
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				snap.Malformed++
				logger.Warn("skipping unparsable ledger row", zap.Int("line", perr.Line), zap.Error(err))
				continue
			}
			return Snapshot{}, fmt.Errorf("scan ledger: %w", err)
		}
		if first {
			first = false
			if isHeader(record) {
				continue
			}
		}
		entry, err := decode(record)
		if err != nil {
			snap.Malformed++
			line, _ := r.FieldPos(0)
			logger.Warn("skipping malformed ledger row", zap.Int("line", line), zap.Error(err))
			continue
		}
		snap.Entries = append(snap.Entries, entry)
		if entry.Status.IsSuccess() {
			snap.Completed[entry.OriginalURL] = struct{}{}
		}
	}
	return snap, nil
}

func isHeader(record []string) bool {
	if len(record) != len(Header) {
		return false
	}
	for i, col := range Header {
		if strings.TrimSpace(record[i]) != col {
			return false
		}
	}
	return true
}

func decode(record []string) (Entry, error) {
	if len(record) != len(Header) {
		return Entry{}, fmt.Errorf("%w: expected %d columns, got %d", ErrMalformedRow, len(Header), len(record))
	}
	url := strings.TrimSpace(record[0])
	if url == "" {
		return Entry{}, fmt.Errorf("%w: empty url", ErrMalformedRow)
	}
	status, err := ParseStatus(record[2])
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		OriginalURL:   url,
		SavedFilename: strings.TrimSpace(record[1]),
		Status:        status,
	}, nil
}
