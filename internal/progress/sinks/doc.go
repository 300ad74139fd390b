// Package sinks implements concrete progress consumers: a periodic structured
// log summary and Prometheus run collectors. Each sink satisfies the
// progress.Sink interface and is safe for repeated Consume/Close cycles.
package sinks
