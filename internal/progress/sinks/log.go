package sinks

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/seedindex/internal/progress"
)

// LogSink writes one summary line per batch instead of one line per event,
// giving a running tally of each run.
type LogSink struct {
	logger *zap.Logger

	mu     sync.Mutex
	totals map[[16]byte]*runTally
}

type runTally struct {
	phase     progress.Phase
	total     int64
	completed int64
	outcomes  map[string]int64
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger, totals: make(map[[16]byte]*runTally)}
}

// Consume folds the batch into the per-run tallies and logs them.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	touched := make(map[[16]byte]struct{})
	for _, evt := range batch {
		tally := s.tally(evt)
		switch evt.Stage {
		case progress.StageRunStart:
			tally.total = evt.Total
			s.logger.Info("run started",
				zap.String("run_id", evt.RunUUID().String()),
				zap.String("phase", string(evt.Phase)),
				zap.Int64("planned", evt.Total),
			)
		case progress.StageFetchDone, progress.StageDocIndexed:
			tally.completed++
			tally.outcomes[evt.Outcome]++
			touched[evt.RunID] = struct{}{}
		case progress.StageRunDone, progress.StageRunError:
			s.logTally(evt.RunID, tally)
			s.logger.Info("run finished",
				zap.String("run_id", evt.RunUUID().String()),
				zap.String("phase", string(evt.Phase)),
				zap.Bool("failed", evt.Stage == progress.StageRunError),
				zap.Duration("elapsed", evt.Dur),
				zap.String("note", evt.Note),
			)
			delete(s.totals, evt.RunID)
			delete(touched, evt.RunID)
		}
	}
	for id := range touched {
		if tally, ok := s.totals[id]; ok {
			s.logTally(id, tally)
		}
	}
	return nil
}

func (s *LogSink) tally(evt progress.Event) *runTally {
	t, ok := s.totals[evt.RunID]
	if !ok {
		t = &runTally{phase: evt.Phase, outcomes: make(map[string]int64)}
		s.totals[evt.RunID] = t
	}
	return t
}

func (s *LogSink) logTally(id [16]byte, t *runTally) {
	fields := []zap.Field{
		zap.String("run_id", progress.Event{RunID: id}.RunUUID().String()),
		zap.String("phase", string(t.phase)),
		zap.Int64("completed", t.completed),
		zap.Int64("planned", t.total),
	}
	keys := make([]string, 0, len(t.outcomes))
	for k := range t.outcomes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, zap.Int64(k, t.outcomes[k]))
	}
	s.logger.Info("progress", fields...)
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
