package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/JakeFAU/seedindex/internal/ledger"
	"github.com/JakeFAU/seedindex/internal/metrics"
	"github.com/JakeFAU/seedindex/internal/progress"
)

// ErrNothingToIndex is returned when no logged document is available.
var ErrNothingToIndex = errors.New("no documents available to index")

// Per-document build results, used for metrics and progress.
const (
	ResultIndexed     = "indexed"
	ResultMissing     = "missing"
	ResultReadFailure = "read_failure"
)

// DocumentSource is the read side of the document store.
type DocumentSource interface {
	Filenames() (map[string]struct{}, error)
	Read(name string) ([]byte, error)
}

// Tokenizer turns a raw body into index terms.
type Tokenizer interface {
	Tokenize(body []byte) []string
}

// Stats describes one build.
type Stats struct {
	// Logged counts distinct URLs with a success row in the ledger.
	Logged       int `json:"logged"`
	Indexed      int `json:"indexed"`
	Missing      int `json:"missing"`
	ReadFailures int `json:"read_failures"`
	Terms        int `json:"terms"`
}

// Result is a complete index with its document map.
type Result struct {
	Index     InvertedIndex
	Documents DocumentMap
	Stats     Stats
}

// Option customizes a Builder.
type Option func(*Builder)

// WithEmitter reports per-document progress to e.
func WithEmitter(e progress.Emitter) Option {
	return func(b *Builder) {
		b.emitter = e
	}
}

// WithShards tokenizes documents on n goroutines and merges the partial
// indexes. Values below 2 keep the single-threaded build.
func WithShards(n int) Option {
	return func(b *Builder) {
		b.shards = n
	}
}

// Builder reads the ledger and the document store and produces the index.
type Builder struct {
	tokenizer Tokenizer
	logger    *zap.Logger
	emitter   progress.Emitter
	shards    int
}

// NewBuilder returns a Builder using tok for every document.
func NewBuilder(tok Tokenizer, logger *zap.Logger, opts ...Option) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	b := &Builder{tokenizer: tok, logger: logger.Named("index"), shards: 1}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type job struct {
	url  string
	name string
}

// Build indexes every success row of the ledger whose file is present in
// docs. Documents get sequential ids in ledger order. Missing files and
// unreadable documents are skipped and counted; a ledger or store listing
// failure aborts the build with no index.
func (b *Builder) Build(ctx context.Context, ledgerPath string, docs DocumentSource) (res Result, err error) {
	rec := progress.NewRecorder(b.emitter, progress.PhaseIndex)
	defer func() { rec.Finish(err) }()

	snap, err := ledger.Read(ledgerPath, b.logger)
	if err != nil {
		return Result{}, fmt.Errorf("read ledger: %w", err)
	}
	available, err := docs.Filenames()
	if err != nil {
		return Result{}, fmt.Errorf("list documents: %w", err)
	}

	successes := snap.Successes()
	var stats Stats
	stats.Logged = len(successes)
	rec.Start(len(successes))

	plan := make([]job, 0, len(successes))
	for _, e := range successes {
		if _, ok := available[e.SavedFilename]; !ok {
			stats.Missing++
			b.observe(rec, e.OriginalURL, ResultMissing)
			continue
		}
		plan = append(plan, job{url: e.OriginalURL, name: e.SavedFilename})
	}
	b.logger.Info("index build plan",
		zap.Int("logged", stats.Logged),
		zap.Int("available", len(plan)),
	)
	if stats.Missing > 0 {
		b.logger.Warn("logged documents missing from store", zap.Int("missing", stats.Missing))
	}
	if len(plan) == 0 {
		b.logger.Error("nothing to index")
		return Result{}, ErrNothingToIndex
	}

	var idx InvertedIndex
	var docMap DocumentMap
	if b.shards > 1 && len(plan) > 1 {
		idx, docMap, err = b.buildSharded(ctx, plan, docs, rec, &stats)
	} else {
		idx, docMap, err = b.buildSequential(ctx, plan, docs, rec, &stats)
	}
	if err != nil {
		return Result{}, err
	}
	if len(docMap) == 0 {
		b.logger.Error("every available document failed to read")
		return Result{}, ErrNothingToIndex
	}

	stats.Indexed = len(docMap)
	stats.Terms = len(idx)
	metrics.SetIndexTerms(stats.Terms)
	b.logger.Info("index built",
		zap.Int("documents", stats.Indexed),
		zap.Int("terms", stats.Terms),
		zap.Int("missing", stats.Missing),
		zap.Int("read_failures", stats.ReadFailures),
	)
	return Result{Index: idx, Documents: docMap, Stats: stats}, nil
}

func (b *Builder) buildSequential(
	ctx context.Context,
	plan []job,
	docs DocumentSource,
	rec *progress.Recorder,
	stats *Stats,
) (InvertedIndex, DocumentMap, error) {
	idx := InvertedIndex{}
	docMap := DocumentMap{}
	next := 0
	for _, j := range plan {
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("index build interrupted: %w", err)
		}
		body, err := docs.Read(j.name)
		if err != nil {
			stats.ReadFailures++
			b.logger.Error("read document", zap.String("url", j.url), zap.String("file", j.name), zap.Error(err))
			b.observe(rec, j.url, ResultReadFailure)
			continue
		}
		docMap[next] = j.url
		idx.AddDocument(next, b.tokenizer.Tokenize(body))
		next++
		b.observe(rec, j.url, ResultIndexed)
	}
	return idx, docMap, nil
}

type shardResult struct {
	index InvertedIndex
	// ok holds the plan positions read successfully.
	ok     []int
	failed int
}

// buildSharded splits the plan into contiguous ranges. Each shard indexes its
// range under provisional ids (plan positions); the parts are then renumbered
// to dense sequential ids in plan order and merged.
func (b *Builder) buildSharded(
	ctx context.Context,
	plan []job,
	docs DocumentSource,
	rec *progress.Recorder,
	stats *Stats,
) (InvertedIndex, DocumentMap, error) {
	n := min(b.shards, len(plan))
	size := (len(plan) + n - 1) / n

	p := pool.NewWithResults[shardResult]().WithContext(ctx).WithMaxGoroutines(n)
	for lo := 0; lo < len(plan); lo += size {
		hi := min(lo+size, len(plan))
		p.Go(func(ctx context.Context) (shardResult, error) {
			part := shardResult{index: InvertedIndex{}}
			for pos := lo; pos < hi; pos++ {
				if err := ctx.Err(); err != nil {
					return shardResult{}, err
				}
				j := plan[pos]
				body, err := docs.Read(j.name)
				if err != nil {
					part.failed++
					b.logger.Error("read document", zap.String("url", j.url), zap.String("file", j.name), zap.Error(err))
					b.observe(rec, j.url, ResultReadFailure)
					continue
				}
				part.index.AddDocument(pos, b.tokenizer.Tokenize(body))
				part.ok = append(part.ok, pos)
				b.observe(rec, j.url, ResultIndexed)
			}
			return part, nil
		})
	}
	parts, err := p.Wait()
	if err != nil {
		return nil, nil, fmt.Errorf("index build interrupted: %w", err)
	}

	read := make([]bool, len(plan))
	indexes := make([]InvertedIndex, 0, len(parts))
	for _, part := range parts {
		stats.ReadFailures += part.failed
		for _, pos := range part.ok {
			read[pos] = true
		}
		indexes = append(indexes, part.index)
	}
	ids := make(map[int]int, len(plan))
	docMap := DocumentMap{}
	for pos, ok := range read {
		if !ok {
			continue
		}
		id := len(docMap)
		ids[pos] = id
		docMap[id] = plan[pos].url
	}
	return Merge(indexes...).remap(ids), docMap, nil
}

func (b *Builder) observe(rec *progress.Recorder, url, result string) {
	metrics.ObserveIndexDocument(result)
	rec.Indexed(url, result)
}
