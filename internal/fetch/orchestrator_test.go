package fetch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/seedindex/internal/fetcher"
	"github.com/JakeFAU/seedindex/internal/hash/sha256"
	"github.com/JakeFAU/seedindex/internal/ledger"
	"github.com/JakeFAU/seedindex/internal/progress"
	"github.com/JakeFAU/seedindex/internal/storage/local"
)

// stubFetcher answers from a table and records concurrency.
type stubFetcher struct {
	delay    time.Duration
	outcomes map[string]fetcher.Outcome
	panicOn  string

	calls    atomic.Int64
	inFlight atomic.Int64
	maxSeen  atomic.Int64

	mu        sync.Mutex
	requested []string
}

func (s *stubFetcher) Fetch(_ context.Context, url string) fetcher.Outcome {
	s.calls.Add(1)
	s.mu.Lock()
	s.requested = append(s.requested, url)
	s.mu.Unlock()

	cur := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		prev := s.maxSeen.Load()
		if cur <= prev || s.maxSeen.CompareAndSwap(prev, cur) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if url == s.panicOn {
		panic("boom")
	}
	if out, ok := s.outcomes[url]; ok {
		return out
	}
	return fetcher.Outcome{URL: url, Kind: fetcher.Success, StatusCode: 200, Body: []byte("<p>" + url + "</p>")}
}

func (s *stubFetcher) Requested() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requested...)
}

// ctxFetcher blocks until ctx ends and reports what ended it.
type ctxFetcher struct {
	started     chan struct{}
	once        sync.Once
	sawDeadline atomic.Bool
}

func newCtxFetcher() *ctxFetcher {
	return &ctxFetcher{started: make(chan struct{})}
}

func (c *ctxFetcher) Fetch(ctx context.Context, url string) fetcher.Outcome {
	if _, ok := ctx.Deadline(); ok {
		c.sawDeadline.Store(true)
	}
	c.once.Do(func() { close(c.started) })
	<-ctx.Done()
	return fetcher.Outcome{URL: url, Kind: fetcher.NetworkFailure, Message: ctx.Err().Error()}
}

type memStore struct {
	mu   sync.Mutex
	docs map[string][]byte
	fail error
}

func newMemStore() *memStore {
	return &memStore{docs: map[string][]byte{}}
}

func (m *memStore) Put(_ context.Context, name string, body []byte) error {
	if m.fail != nil {
		return m.fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[name] = append([]byte(nil), body...)
	return nil
}

type memLedger struct {
	mu      sync.Mutex
	entries []ledger.Entry
	fail    error
}

func (m *memLedger) Append(e ledger.Entry) error {
	if m.fail != nil {
		return m.fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func urls(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("http://example.com/%d", i)
	}
	return out
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(Config{MaxWorkers: 0}, &stubFetcher{}, newMemStore(), &memLedger{}, nil)
	require.Error(t, err)
	_, err = New(Config{MaxWorkers: 1}, nil, newMemStore(), &memLedger{}, nil)
	require.Error(t, err)
	_, err = New(Config{MaxWorkers: 1, Timeout: -time.Second}, &stubFetcher{}, newMemStore(), &memLedger{}, nil)
	require.Error(t, err)
}

func TestRunRespectsConcurrencyBound(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{delay: 20 * time.Millisecond}
	o, err := New(Config{MaxWorkers: 3}, f, newMemStore(), &memLedger{}, nil)
	require.NoError(t, err)

	res, err := o.Run(context.Background(), urls(30), ledger.URLSet{})
	require.NoError(t, err)
	assert.Len(t, res.Attempted, 30)
	assert.LessOrEqual(t, f.maxSeen.Load(), int64(3))
	assert.Equal(t, int64(3), f.maxSeen.Load())
}

func TestRunIdempotentWhenEverythingCompleted(t *testing.T) {
	t.Parallel()

	all := urls(5)
	done := ledger.URLSet{}
	for _, u := range all {
		done[u] = struct{}{}
	}
	f := &stubFetcher{}
	lw := &memLedger{}
	o, err := New(Config{MaxWorkers: 4}, f, newMemStore(), lw, nil)
	require.NoError(t, err)

	res, err := o.Run(context.Background(), all, done)
	require.NoError(t, err)
	assert.Zero(t, f.calls.Load())
	assert.Empty(t, res.Attempted)
	assert.NotNil(t, res.Attempted)
	assert.Equal(t, 5, res.Skipped)
	assert.Empty(t, lw.entries)
}

func TestRunFetchesExactlyPending(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logPath := filepath.Join(dir, "collection_log.csv")

	// an earlier run: a succeeded once then failed, b only failed, c succeeded
	prior, err := ledger.OpenWriter(logPath)
	require.NoError(t, err)
	for _, e := range []ledger.Entry{
		{OriginalURL: "http://a.com", Status: ledger.Success(200)},
		{OriginalURL: "http://a.com", Status: ledger.Error(ledger.CategoryHTTP, "500")},
		{OriginalURL: "http://b.com", Status: ledger.Error(ledger.CategoryNetwork, "timeout")},
		{OriginalURL: "http://b.com", Status: ledger.Error(ledger.CategoryNetwork, "timeout")},
		{OriginalURL: "http://c.com", Status: ledger.Success(200)},
	} {
		require.NoError(t, prior.Append(e))
	}
	require.NoError(t, prior.Close())

	snap, err := ledger.Read(logPath, nil)
	require.NoError(t, err)

	lw, err := ledger.OpenWriter(logPath)
	require.NoError(t, err)
	store, err := local.New(local.Config{BaseDir: filepath.Join(dir, "pages")})
	require.NoError(t, err)
	f := &stubFetcher{}
	o, err := New(Config{MaxWorkers: 2}, f, store, lw, nil)
	require.NoError(t, err)

	seedList := []string{"http://a.com", "http://b.com", "http://c.com", "http://d.com", "http://d.com"}
	res, err := o.Run(context.Background(), seedList, snap.Completed)
	require.NoError(t, err)
	require.NoError(t, lw.Close())

	assert.ElementsMatch(t, []string{"http://b.com", "http://d.com"}, f.Requested())
	assert.ElementsMatch(t, []string{"http://b.com", "http://d.com"}, res.Attempted)
	assert.Equal(t, 3, res.Skipped)

	after, err := ledger.Read(logPath, nil)
	require.NoError(t, err)
	assert.Len(t, after.Entries, 7)
	assert.Len(t, after.Completed, 4)

	body, err := store.Read(sha256.Filename("http://d.com"))
	require.NoError(t, err)
	assert.Equal(t, "<p>http://d.com</p>", string(body))
}

func TestRunIsolatesFailures(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{
		panicOn: "http://panic.com",
		outcomes: map[string]fetcher.Outcome{
			"http://404.com":  {Kind: fetcher.HTTPError, StatusCode: 404, Message: "404 Client Error: Not Found"},
			"http://down.com": {Kind: fetcher.NetworkFailure, Message: "dial tcp: connection refused"},
		},
	}
	store := newMemStore()
	lw := &memLedger{}
	o, err := New(Config{MaxWorkers: 2}, f, store, lw, nil)
	require.NoError(t, err)

	seedList := []string{"http://ok.com", "http://404.com", "http://down.com", "http://panic.com", "http://ok2.com"}
	res, err := o.Run(context.Background(), seedList, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 1, res.Fatal)
	require.Len(t, lw.entries, 5)

	byURL := map[string]ledger.Status{}
	for _, e := range lw.entries {
		_, dup := byURL[e.OriginalURL]
		assert.False(t, dup, "one row per url")
		byURL[e.OriginalURL] = e.Status
		assert.Equal(t, sha256.Filename(e.OriginalURL), e.SavedFilename)
	}
	assert.Equal(t, "SUCCESS_200", byURL["http://ok.com"].String())
	assert.Equal(t, "ERROR_http_error_404 Client Error: Not Found", byURL["http://404.com"].String())
	assert.Equal(t, "ERROR_network_failure_dial tcp: connection refused", byURL["http://down.com"].String())
	assert.Equal(t, "FATAL_ERROR_panic: boom", byURL["http://panic.com"].String())

	assert.Len(t, store.docs, 2)
	assert.Contains(t, store.docs, sha256.Filename("http://ok.com"))
	assert.NotContains(t, store.docs, sha256.Filename("http://404.com"))
}

func TestRunStoreFailureIsFatal(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.fail = errors.New("disk full")
	lw := &memLedger{}
	o, err := New(Config{MaxWorkers: 1}, &stubFetcher{}, store, lw, nil)
	require.NoError(t, err)

	res, err := o.Run(context.Background(), []string{"http://a.com"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Fatal)
	require.Len(t, lw.entries, 1)
	assert.Equal(t, "FATAL_ERROR_write document: disk full", lw.entries[0].Status.String())
}

func TestRunLedgerFailureIsCounted(t *testing.T) {
	t.Parallel()

	lw := &memLedger{fail: errors.New("read-only file system")}
	o, err := New(Config{MaxWorkers: 2}, &stubFetcher{}, newMemStore(), lw, nil)
	require.NoError(t, err)

	res, err := o.Run(context.Background(), urls(3), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.LedgerWriteFailures)
	assert.Len(t, res.Attempted, 3)
}

func TestRunCanceledStopsDispatch(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &stubFetcher{}
	lw := &memLedger{}
	o, err := New(Config{MaxWorkers: 1}, f, newMemStore(), lw, nil)
	require.NoError(t, err)

	res, err := o.Run(ctx, urls(50), nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, lw.entries, len(res.Attempted))
	assert.Less(t, len(res.Attempted), 50)
}

func TestRunAppliesPerFetchTimeout(t *testing.T) {
	t.Parallel()

	f := newCtxFetcher()
	lw := &memLedger{}
	o, err := New(Config{MaxWorkers: 2, Timeout: 20 * time.Millisecond}, f, newMemStore(), lw, nil)
	require.NoError(t, err)

	res, err := o.Run(context.Background(), urls(2), nil)
	require.NoError(t, err)
	assert.True(t, f.sawDeadline.Load())
	assert.Equal(t, 2, res.Failed)
	require.Len(t, lw.entries, 2)
	for _, e := range lw.entries {
		assert.Equal(t, "ERROR_network_failure_context deadline exceeded", e.Status.String())
	}
}

func TestRunCancelRecordsInFlightFetches(t *testing.T) {
	t.Parallel()

	f := newCtxFetcher()
	lw := &memLedger{}
	o, err := New(Config{MaxWorkers: 1}, f, newMemStore(), lw, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-f.started
		cancel()
	}()
	res, err := o.Run(ctx, urls(3), nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, f.sawDeadline.Load())

	// the aborted fetch is recorded as a failure and retried by the next run
	require.NotEmpty(t, lw.entries)
	assert.Less(t, len(lw.entries), 3)
	assert.Equal(t, "http://example.com/0", lw.entries[0].OriginalURL)
	for _, e := range lw.entries {
		assert.Equal(t, "ERROR_network_failure_context canceled", e.Status.String())
	}
	assert.Len(t, res.Attempted, len(lw.entries))
}

func TestRunUsesCustomNamer(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	lw := &memLedger{}
	namer := func(u string) string {
		return strings.TrimPrefix(u, "http://") + ".html"
	}
	o, err := New(Config{MaxWorkers: 1}, &stubFetcher{}, store, lw, nil, WithNamer(namer))
	require.NoError(t, err)

	_, err = o.Run(context.Background(), []string{"http://a.com"}, nil)
	require.NoError(t, err)
	assert.Contains(t, store.docs, "a.com.html")
	require.Len(t, lw.entries, 1)
	assert.Equal(t, "a.com.html", lw.entries[0].SavedFilename)
}

func TestRunCountsTruncatedBodies(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{outcomes: map[string]fetcher.Outcome{
		"http://big.com": {Kind: fetcher.Success, StatusCode: 200, Body: []byte("0123456789"), Truncated: true},
	}}
	store := newMemStore()
	lw := &memLedger{}
	o, err := New(Config{MaxWorkers: 2}, f, store, lw, nil)
	require.NoError(t, err)

	res, err := o.Run(context.Background(), []string{"http://big.com", "http://small.com"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Truncated)
	assert.Equal(t, "0123456789", string(store.docs[sha256.Filename("http://big.com")]))
	for _, e := range lw.entries {
		assert.Equal(t, "SUCCESS_200", e.Status.String())
	}
}

func TestRunEmitsProgress(t *testing.T) {
	t.Parallel()

	tracker := progress.NewTracker()
	hub := progress.NewHub(progress.Config{MaxBatchEvents: 1}, tracker)
	o, err := New(Config{MaxWorkers: 2}, &stubFetcher{}, newMemStore(), &memLedger{}, nil, WithEmitter(hub))
	require.NoError(t, err)

	_, err = o.Run(context.Background(), urls(4), nil)
	require.NoError(t, err)
	require.NoError(t, hub.Close(context.Background()))

	snap := tracker.Snapshot()
	assert.Equal(t, progress.StateDone, snap.State)
	assert.EqualValues(t, 4, snap.Total)
	assert.EqualValues(t, 4, snap.ByOutcome["success"])
}
