// Package metrics exposes Prometheus collectors for the fetch and index stages.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchTotal                 *prometheus.CounterVec
	fetchBytesTotal            prometheus.Counter
	fetchInFlight              prometheus.Gauge
	fetchDurationSeconds       *prometheus.HistogramVec
	ledgerWriteFailuresTotal   prometheus.Counter
	fetchTruncatedTotal        prometheus.Counter
	indexDocumentsTotal        *prometheus.CounterVec
	indexTerms                 prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seedindex_fetch_total",
				Help: "Total number of fetch attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		fetchBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "seedindex_fetch_bytes_total",
				Help: "Total number of body bytes stored from successful fetches.",
			},
		)

		fetchInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "seedindex_fetch_in_flight",
				Help: "Number of requests currently in flight.",
			},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "seedindex_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies, labeled by outcome.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"outcome"},
		)

		ledgerWriteFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "seedindex_ledger_write_failures_total",
				Help: "Total number of ledger rows that could not be written.",
			},
		)

		fetchTruncatedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "seedindex_fetch_truncated_total",
				Help: "Successful fetches whose body reached the size cap.",
			},
		)

		indexDocumentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seedindex_index_documents_total",
				Help: "Documents considered by the index builder, labeled by result.",
			},
			[]string{"result"},
		)

		indexTerms = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "seedindex_index_terms",
				Help: "Number of distinct terms in the last built index.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of diagnostics HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of diagnostics HTTP latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one completed fetch attempt.
func ObserveFetch(outcome string, bytesStored int, duration time.Duration) {
	fetchTotal.WithLabelValues(outcome).Inc()
	fetchDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
	if bytesStored > 0 {
		fetchBytesTotal.Add(float64(bytesStored))
	}
}

// IncInFlight increments the in-flight gauge.
func IncInFlight() {
	fetchInFlight.Inc()
}

// DecInFlight decrements the in-flight gauge.
func DecInFlight() {
	fetchInFlight.Dec()
}

// ObserveLedgerWriteFailure counts a ledger row that was lost.
func ObserveLedgerWriteFailure() {
	ledgerWriteFailuresTotal.Inc()
}

// ObserveTruncatedBody counts a stored body cut at the size cap.
func ObserveTruncatedBody() {
	fetchTruncatedTotal.Inc()
}

// ObserveIndexDocument counts a document by build result
// (indexed, missing or read_failure).
func ObserveIndexDocument(result string) {
	indexDocumentsTotal.WithLabelValues(result).Inc()
}

// SetIndexTerms records the vocabulary size of the last build.
func SetIndexTerms(n int) {
	indexTerms.Set(float64(n))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
