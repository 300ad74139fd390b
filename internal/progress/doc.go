// Package progress provides the event primitives, the non-blocking hub and the
// run recorder that the fetch and index stages use to report progress. The hub
// batches events on a background goroutine and fans them out to sinks such as
// the periodic log summary, Prometheus collectors and the live Tracker served
// by the diagnostics endpoint.
package progress
