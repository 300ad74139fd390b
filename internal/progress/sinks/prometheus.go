package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/seedindex/internal/metrics"
	"github.com/JakeFAU/seedindex/internal/progress"
)

// PrometheusSink exports run-level progress via Prometheus: runs started,
// completed and running per phase, run wall time, and per-site fetch counts.
type PrometheusSink struct {
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runsRunning   *prometheus.GaugeVec
	runRuntime    *prometheus.HistogramVec

	siteFetches *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seedindex_runs_started_total",
			Help: "Total runs that have started, partitioned by phase.",
		}, []string{"phase"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seedindex_runs_completed_total",
			Help: "Total runs completed partitioned by phase and result.",
		}, []string{"phase", "result"}),
		runsRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "seedindex_runs_running",
			Help: "Current number of running runs per phase.",
		}, []string{"phase"}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "seedindex_run_runtime_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600, 7200},
		}, []string{"phase", "result"}),
		siteFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seedindex_site_fetches_total",
			Help: "Fetch completions partitioned by site and status class.",
		}, []string{"site", "status_class"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runRuntime,
		s.siteFetches,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	phase := string(evt.Phase)
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.WithLabelValues(phase).Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.WithLabelValues(phase).Inc()
		}
	case progress.StageRunDone, progress.StageRunError:
		result := "success"
		if evt.Stage == progress.StageRunError {
			result = "error"
		}
		s.runsCompleted.WithLabelValues(phase, result).Inc()
		if evt.Dur > 0 {
			s.runRuntime.WithLabelValues(phase, result).Observe(evt.Dur.Seconds())
		}
		if s.tracker.complete(evt.RunID) {
			s.runsRunning.WithLabelValues(phase).Dec()
		}
	case progress.StageFetchDone:
		class := evt.StatusClass
		if class == "" {
			class = progress.StatusOther
		}
		s.siteFetches.WithLabelValues(metrics.SanitizeSite(evt.Site), string(class)).Inc()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
