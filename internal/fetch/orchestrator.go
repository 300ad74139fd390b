// Package fetch runs the resumable, bounded-concurrency collection stage: it
// downloads every pending seed URL, stores successful bodies and appends one
// ledger row per attempt.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/seedindex/internal/fetcher"
	"github.com/JakeFAU/seedindex/internal/hash/sha256"
	"github.com/JakeFAU/seedindex/internal/ledger"
	"github.com/JakeFAU/seedindex/internal/metrics"
	"github.com/JakeFAU/seedindex/internal/progress"
	"github.com/JakeFAU/seedindex/internal/seeds"
)

// ErrSeedsUnavailable marks a stage that could not obtain its seed list.
var ErrSeedsUnavailable = errors.New("seed list unavailable")

// Config is the immutable orchestrator configuration. The request headers
// belong to the Fetcher.
type Config struct {
	// MaxWorkers bounds the number of fetches in flight.
	MaxWorkers int
	// Timeout is the deadline applied to each Fetch call; zero leaves the
	// deadline to the Fetcher.
	Timeout time.Duration
}

// DocumentStore receives successful bodies.
type DocumentStore interface {
	Put(ctx context.Context, name string, body []byte) error
}

// LedgerWriter appends ledger rows.
type LedgerWriter interface {
	Append(e ledger.Entry) error
}

// Result summarizes one Run.
type Result struct {
	// Attempted lists the URLs fetched in this run, in completion order.
	Attempted []string
	// Skipped counts seeds completed by earlier runs or repeated in the list.
	Skipped             int
	Succeeded           int
	Failed              int
	Fatal               int
	LedgerWriteFailures int
	// Truncated counts successes whose body reached the size cap.
	Truncated int
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithEmitter reports per-URL progress to e.
func WithEmitter(e progress.Emitter) Option {
	return func(o *Orchestrator) {
		o.emitter = e
	}
}

// WithNamer overrides the stored filename derivation.
func WithNamer(namer func(url string) string) Option {
	return func(o *Orchestrator) {
		if namer != nil {
			o.namer = namer
		}
	}
}

// Orchestrator coordinates workers, the document store and the ledger.
type Orchestrator struct {
	cfg     Config
	fetcher fetcher.Fetcher
	store   DocumentStore
	ledger  LedgerWriter
	logger  *zap.Logger
	emitter progress.Emitter
	namer   func(string) string
}

// New validates the dependencies and returns an Orchestrator.
func New(
	cfg Config,
	f fetcher.Fetcher,
	store DocumentStore,
	lw LedgerWriter,
	logger *zap.Logger,
	opts ...Option,
) (*Orchestrator, error) {
	if cfg.MaxWorkers <= 0 {
		return nil, fmt.Errorf("max workers must be positive, got %d", cfg.MaxWorkers)
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative, got %s", cfg.Timeout)
	}
	if f == nil || store == nil || lw == nil {
		return nil, errors.New("fetcher, document store and ledger writer are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	o := &Orchestrator{
		cfg:     cfg,
		fetcher: f,
		store:   store,
		ledger:  lw,
		logger:  logger.Named("fetch"),
		namer:   sha256.Filename,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

type attempt struct {
	outcome fetcher.Outcome
	entry   ledger.Entry
	stored  int
}

// Run fetches every seed not in completed. It blocks until all dispatched
// work has produced a ledger row. Individual failures never fail the run;
// an error is returned only when ctx ends before every seed was dispatched.
func (o *Orchestrator) Run(ctx context.Context, seedURLs []string, completed ledger.URLSet) (Result, error) {
	pending := pendingSeeds(seedURLs, completed)
	res := Result{Attempted: []string{}, Skipped: len(seedURLs) - len(pending)}
	o.logger.Info("collection summary",
		zap.Int("seeds", len(seedURLs)),
		zap.Int("already_completed", res.Skipped),
		zap.Int("pending", len(pending)),
		zap.Int("max_workers", o.cfg.MaxWorkers),
	)
	if len(pending) == 0 {
		o.logger.Info("no new urls to collect")
		return res, nil
	}

	rec := progress.NewRecorder(o.emitter, progress.PhaseFetch)
	rec.Start(len(pending))

	jobs := make(chan string)
	results := make(chan attempt, o.cfg.MaxWorkers)

	var wg sync.WaitGroup
	for range min(o.cfg.MaxWorkers, len(pending)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for url := range jobs {
				results <- o.handle(ctx, url)
			}
		}()
	}

	dispatched := make(chan int, 1)
	go func() {
		defer close(jobs)
		n := 0
		for _, url := range pending {
			if ctx.Err() != nil {
				break
			}
			select {
			case jobs <- url:
				n++
			case <-ctx.Done():
				dispatched <- n
				return
			}
		}
		dispatched <- n
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for a := range results {
		o.record(&res, a, rec)
	}

	var runErr error
	if n := <-dispatched; n < len(pending) {
		runErr = fmt.Errorf("collection interrupted after %d of %d urls: %w", n, len(pending), ctx.Err())
	}
	rec.Finish(runErr)
	o.logger.Info("collection finished",
		zap.Int("attempted", len(res.Attempted)),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
		zap.Int("fatal", res.Fatal),
		zap.Int("ledger_write_failures", res.LedgerWriteFailures),
	)
	return res, runErr
}

// handle fetches one URL and stores its body. Any panic becomes a fatal
// outcome for that URL alone.
func (o *Orchestrator) handle(ctx context.Context, url string) (a attempt) {
	name := o.namer(url)
	start := time.Now()
	metrics.IncInFlight()
	defer metrics.DecInFlight()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic while handling url",
				zap.String("url", url),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			out := fetcher.Outcome{
				URL:      url,
				Kind:     fetcher.Fatal,
				Message:  fmt.Sprintf("panic: %v", r),
				Duration: time.Since(start),
			}
			a = attempt{outcome: out, entry: ledger.Entry{OriginalURL: url, SavedFilename: name, Status: out.Status()}}
		}
	}()

	out := o.fetch(ctx, url)
	out.URL = url
	stored := 0
	if out.Kind == fetcher.Success {
		// a body already downloaded is kept even if shutdown has begun
		if err := o.store.Put(context.WithoutCancel(ctx), name, out.Body); err != nil {
			out.Kind = fetcher.Fatal
			out.Message = fmt.Sprintf("write document: %v", err)
		} else {
			stored = len(out.Body)
		}
	}
	out.Body = nil
	return attempt{
		outcome: out,
		entry:   ledger.Entry{OriginalURL: url, SavedFilename: name, Status: out.Status()},
		stored:  stored,
	}
}

func (o *Orchestrator) fetch(ctx context.Context, url string) fetcher.Outcome {
	if o.cfg.Timeout <= 0 {
		return o.fetcher.Fetch(ctx, url)
	}
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()
	return o.fetcher.Fetch(ctx, url)
}

// record is only called from the Run goroutine, so ledger rows are appended
// by a single writer in completion order.
func (o *Orchestrator) record(res *Result, a attempt, rec *progress.Recorder) {
	out := a.outcome
	if err := o.ledger.Append(a.entry); err != nil {
		res.LedgerWriteFailures++
		metrics.ObserveLedgerWriteFailure()
		o.logger.Error("ledger append failed", zap.String("url", out.URL), zap.Error(err))
	}
	res.Attempted = append(res.Attempted, out.URL)

	fields := []zap.Field{
		zap.String("url", out.URL),
		zap.Int("status", out.StatusCode),
		zap.Duration("duration", out.Duration),
	}
	switch out.Kind {
	case fetcher.Success:
		res.Succeeded++
		o.logger.Info("fetched", fields...)
		if out.Truncated {
			res.Truncated++
			metrics.ObserveTruncatedBody()
			o.logger.Warn("body reached the size cap and may be truncated",
				zap.String("url", out.URL),
				zap.Int("bytes", a.stored),
			)
		}
	case fetcher.HTTPError, fetcher.NetworkFailure:
		res.Failed++
		o.logger.Warn("fetch failed", append(fields, zap.String("kind", out.Kind.String()), zap.String("message", out.Message))...)
	default:
		res.Fatal++
		o.logger.Error("fatal error handling url", append(fields, zap.String("message", out.Message))...)
	}

	metrics.ObserveFetch(out.Kind.String(), a.stored, out.Duration)
	rec.Fetched(out.URL, out.Kind.String(), out.StatusCode, a.stored, out.Duration)
}

// pendingSeeds drops completed and repeated seeds, preserving order.
func pendingSeeds(all []string, completed ledger.URLSet) []string {
	pending := seeds.Pending(all, completed)
	seen := make(map[string]struct{}, len(pending))
	out := pending[:0]
	for _, u := range pending {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
