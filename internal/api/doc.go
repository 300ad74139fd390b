// Package api hosts the diagnostics HTTP server. Routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/ledger/summary for row counts of the collection ledger.
//   - GET /v1/progress for the live snapshot of the current or last stage.
package api
