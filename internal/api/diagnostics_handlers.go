package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/seedindex/internal/ledger"
	"github.com/JakeFAU/seedindex/internal/progress"
)

const summaryTimeout = 10 * time.Second

// SnapshotProvider exposes the live progress of the running stage.
type SnapshotProvider interface {
	Snapshot() progress.Snapshot
}

// LedgerSummarizer counts the rows of a ledger file.
type LedgerSummarizer func(path string, logger *zap.Logger) (ledger.Summary, error)

// DiagnosticsHandler serves read-only views of the ledger and run progress.
type DiagnosticsHandler struct {
	ledgerPath string
	summarize  LedgerSummarizer
	progress   SnapshotProvider
	timeout    time.Duration
	logger     *zap.Logger
}

// NewDiagnosticsHandler wires the ledger path, progress source and logger.
// A nil provider makes /v1/progress answer 503.
func NewDiagnosticsHandler(ledgerPath string, provider SnapshotProvider, logger *zap.Logger) *DiagnosticsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiagnosticsHandler{
		ledgerPath: ledgerPath,
		summarize:  ledger.Summarize,
		progress:   provider,
		timeout:    summaryTimeout,
		logger:     logger,
	}
}

// LedgerSummary handles GET /v1/ledger/summary. It returns the Summary of the
// configured ledger, 504 when the scan outlives the request budget, or 500
// when the file cannot be read.
func (h *DiagnosticsHandler) LedgerSummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	type result struct {
		sum ledger.Summary
		err error
	}
	done := make(chan result, 1)
	go func() {
		sum, err := h.summarize(h.ledgerPath, h.logger)
		done <- result{sum: sum, err: err}
	}()

	select {
	case <-ctx.Done():
		writeError(w, http.StatusGatewayTimeout, "ledger summary timed out")
	case res := <-done:
		if res.err != nil {
			h.logger.Error("ledger summary failed", zap.Error(res.err))
			writeError(w, http.StatusInternalServerError, "failed to read ledger")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"path":    h.ledgerPath,
			"summary": res.sum,
		})
	}
}

// Progress handles GET /v1/progress.
func (h *DiagnosticsHandler) Progress(w http.ResponseWriter, _ *http.Request) {
	if h.progress == nil {
		writeError(w, http.StatusServiceUnavailable, "progress tracking unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"progress": h.progress.Snapshot()})
}
