package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/seedindex/internal/ledger"
	"github.com/JakeFAU/seedindex/internal/progress"
)

type fixedSnapshot struct {
	snap progress.Snapshot
}

func (f fixedSnapshot) Snapshot() progress.Snapshot { return f.snap }

func serve(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	s := NewServer(NewDiagnosticsHandler("", nil, nil), zap.NewNop())
	rec := serve(t, s, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	s := NewServer(NewDiagnosticsHandler("", nil, nil), zap.NewNop())
	serve(t, s, "/healthz")
	rec := serve(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_LedgerSummary(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "collection_log.csv")
	content := "original_url,saved_filename,status\n" +
		"http://a.com,a.html,SUCCESS_200\n" +
		"http://a.com,a.html,SUCCESS_200\n" +
		"http://b.com,b.html,ERROR_http_error_404 Client Error\n" +
		"http://c.com,c.html,FATAL_ERROR_disk full\n" +
		"only,two\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s := NewServer(NewDiagnosticsHandler(path, nil, nil), zap.NewNop())
	rec := serve(t, s, "/v1/ledger/summary")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Path    string         `json:"path"`
		Summary ledger.Summary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, path, payload.Path)
	assert.Equal(t, ledger.Summary{
		Rows:              4,
		Malformed:         1,
		SuccessRows:       2,
		ErrorRows:         1,
		FatalRows:         1,
		UniqueSuccessURLs: 1,
	}, payload.Summary)
}

func TestServer_LedgerSummaryFailure(t *testing.T) {
	t.Parallel()

	h := NewDiagnosticsHandler("ledger.csv", nil, nil)
	h.summarize = func(string, *zap.Logger) (ledger.Summary, error) {
		return ledger.Summary{}, errors.New("permission denied")
	}
	rec := serve(t, NewServer(h, nil), "/v1/ledger/summary")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "failed to read ledger")
}

func TestServer_LedgerSummaryTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)
	h := NewDiagnosticsHandler("ledger.csv", nil, nil)
	h.timeout = 10 * time.Millisecond
	h.summarize = func(string, *zap.Logger) (ledger.Summary, error) {
		<-release
		return ledger.Summary{}, nil
	}
	rec := serve(t, NewServer(h, nil), "/v1/ledger/summary")
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestServer_Progress(t *testing.T) {
	t.Parallel()

	provider := fixedSnapshot{snap: progress.Snapshot{
		RunID:     "00000000-0000-0000-0000-0000000000aa",
		Phase:     progress.PhaseFetch,
		State:     progress.StateRunning,
		Total:     10,
		Completed: 4,
		ByOutcome: map[string]int64{"success": 3, "http_error": 1},
	}}
	rec := serve(t, NewServer(NewDiagnosticsHandler("", provider, nil), nil), "/v1/progress")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"state":"running"`)
	assert.Contains(t, body, `"completed":4`)

	rec = serve(t, NewServer(NewDiagnosticsHandler("", nil, nil), nil), "/v1/progress")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	h := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "internal server error"))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rw.Hijack()
	require.Error(t, err)

	hj := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: hj}
	_, _, err = rw.Hijack()
	require.NoError(t, err)
	assert.True(t, hj.hijacked)
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	server, client := net.Pipe()
	_ = client.Close()
	return server, bufio.NewReadWriter(bufio.NewReader(server), bufio.NewWriter(server)), nil
}
