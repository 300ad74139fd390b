package ledger_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/seedindex/internal/ledger"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "collection_log.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestStatusRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status ledger.Status
		wire   string
	}{
		{"success", ledger.Success(200), "SUCCESS_200"},
		{"http", ledger.Error(ledger.CategoryHTTP, "404 Client Error: Not Found"), "ERROR_http_error_404 Client Error: Not Found"},
		{"network", ledger.Error(ledger.CategoryNetwork, "dial tcp: timeout"), "ERROR_network_failure_dial tcp: timeout"},
		{"fatal", ledger.Fatal("disk full"), "FATAL_ERROR_disk full"},
		{"legacy", ledger.Error(ledger.CategoryUnknown, "Read timed out"), "ERROR_Read timed out"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.wire, tc.status.String())
			parsed, err := ledger.ParseStatus(tc.wire)
			require.NoError(t, err)
			assert.Equal(t, tc.status, parsed)
		})
	}
}

func TestParseStatusRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "OK", "SUCCESS_abc", "success_200"} {
		_, err := ledger.ParseStatus(raw)
		assert.ErrorIs(t, err, ledger.ErrMalformedRow, raw)
	}
}

func TestSanitizeMessage(t *testing.T) {
	t.Parallel()

	got := ledger.SanitizeMessage("bad, \"quoted\" thing\nsecond line")
	assert.Equal(t, "bad; 'quoted' thing", got)
	assert.Equal(t, "ERROR_network_failure_a; b", ledger.Error(ledger.CategoryNetwork, "a, b\nc").String())
}

func TestReadMissingFile(t *testing.T) {
	t.Parallel()

	snap, err := ledger.Read(filepath.Join(t.TempDir(), "absent.csv"), nil)
	require.NoError(t, err)
	assert.True(t, snap.NeedsHeader)
	assert.Empty(t, snap.Completed)
	assert.Empty(t, snap.Entries)
}

func TestReadEmptyFileNeedsHeader(t *testing.T) {
	t.Parallel()

	snap, err := ledger.Read(writeFile(t, ""), nil)
	require.NoError(t, err)
	assert.True(t, snap.NeedsHeader)
}

func TestReadAnySuccessWins(t *testing.T) {
	t.Parallel()

	path := writeFile(t, `original_url,saved_filename,status
"http://a.com","a.html","SUCCESS_200"
"http://a.com","a.html","ERROR_http_error_500 Server Error"
"http://b.com","b.html","ERROR_network_failure_timeout"
"http://b.com","b.html","ERROR_network_failure_timeout"
"http://c.com","c.html","FATAL_ERROR_disk"
"http://d.com","d.html","ERROR_http_error_404"
"http://d.com","d.html","SUCCESS_301"
`)
	snap, err := ledger.Read(path, nil)
	require.NoError(t, err)
	assert.False(t, snap.NeedsHeader)
	assert.Len(t, snap.Entries, 7)
	assert.Equal(t, ledger.URLSet{"http://a.com": {}, "http://d.com": {}}, snap.Completed)
}

func TestReadSkipsMalformedRows(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	path := writeFile(t, `original_url,saved_filename,status
"http://a.com","a.html","SUCCESS_200"
"http://b.com","b.html"
"http://c.com","c.html","SUCCESS_200","extra"
"http://d.com","d.html","WHATEVER"
"http://e.com","e.html","SUCCESS_200"
`)
	snap, err := ledger.Read(path, zap.New(core))
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Malformed)
	assert.Equal(t, 3, logs.Len())
	assert.True(t, snap.Completed.Has("http://a.com"))
	assert.True(t, snap.Completed.Has("http://e.com"))
	assert.False(t, snap.Completed.Has("http://c.com"))
}

func TestSuccessesDeduplicates(t *testing.T) {
	t.Parallel()

	path := writeFile(t, `original_url,saved_filename,status
"http://a.com","a.html","SUCCESS_200"
"http://b.com","b.html","ERROR_http_error_404"
"http://a.com","a.html","SUCCESS_200"
"http://c.com","c.html","SUCCESS_200"
`)
	snap, err := ledger.Read(path, nil)
	require.NoError(t, err)
	successes := snap.Successes()
	require.Len(t, successes, 2)
	assert.Equal(t, "http://a.com", successes[0].OriginalURL)
	assert.Equal(t, "http://c.com", successes[1].OriginalURL)
}

func TestWriterHeaderOnceAndAppend(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "collection_log.csv")

	w, err := ledger.OpenWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(ledger.Entry{OriginalURL: "http://a.com/x,y", SavedFilename: "a.html", Status: ledger.Success(200)}))
	require.NoError(t, w.Close())

	w, err = ledger.OpenWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(ledger.Entry{OriginalURL: "http://b.com", SavedFilename: "b.html", Status: ledger.Error(ledger.CategoryHTTP, "404, not \"found\"")}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original_url,saved_filename,status\n"+
		"\"http://a.com/x,y\",a.html,SUCCESS_200\n"+
		"http://b.com,b.html,ERROR_http_error_404; not 'found'\n", string(data))

	snap, err := ledger.Read(path, nil)
	require.NoError(t, err)
	assert.Zero(t, snap.Malformed)
	assert.True(t, snap.Completed.Has("http://a.com/x,y"))
}

func TestWriterRecoversTruncatedTail(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "original_url,saved_filename,status\n"+
		"http://a,a.html,SUCCESS_200\n"+
		"http://b,b.html,SUCC")

	w, err := ledger.OpenWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(ledger.Entry{OriginalURL: "http://c", SavedFilename: "c.html", Status: ledger.Success(200)}))
	require.NoError(t, w.Close())

	snap, err := ledger.Read(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Malformed)
	assert.Equal(t, ledger.URLSet{"http://a": {}, "http://c": {}}, snap.Completed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original_url,saved_filename,status\n"+
		"http://a,a.html,SUCCESS_200\n"+
		"http://b,b.html,SUCC\n"+
		"http://c,c.html,SUCCESS_200\n", string(data))
}

func TestWriterConcurrentAppendsDoNotInterleave(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "collection_log.csv")
	w, err := ledger.OpenWriter(path)
	require.NoError(t, err)

	const n = 200
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			url := "http://example.com/" + string(rune('a'+i%26)) + "/" + filepath.Base(t.Name())
			assert.NoError(t, w.Append(ledger.Entry{OriginalURL: url, SavedFilename: "x.html", Status: ledger.Success(200)}))
		}()
	}
	wg.Wait()
	require.NoError(t, w.Close())

	snap, err := ledger.Read(path, nil)
	require.NoError(t, err)
	assert.Len(t, snap.Entries, n)
	assert.Zero(t, snap.Malformed)
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	path := writeFile(t, `original_url,saved_filename,status
"http://a.com","a.html","SUCCESS_200"
"http://a.com","a.html","SUCCESS_200"
"http://b.com","b.html","ERROR_http_error_404"
"http://c.com","c.html","FATAL_ERROR_boom"
broken
`)
	sum, err := ledger.Summarize(path, nil)
	require.NoError(t, err)
	assert.Equal(t, ledger.Summary{
		Rows:              4,
		Malformed:         1,
		SuccessRows:       2,
		ErrorRows:         1,
		FatalRows:         1,
		UniqueSuccessURLs: 1,
	}, sum)

	empty, err := ledger.Summarize(filepath.Join(t.TempDir(), "none.csv"), nil)
	require.NoError(t, err)
	assert.Zero(t, empty)
}
