package progress

import (
	"context"
	"maps"
	"sync"
	"time"
)

// Run states reported by Snapshot.
const (
	StateIdle    = "idle"
	StateRunning = "running"
	StateDone    = "done"
	StateError   = "error"
)

// Snapshot is the live view of the most recent run.
type Snapshot struct {
	RunID     string           `json:"run_id,omitempty"`
	Phase     Phase            `json:"phase,omitempty"`
	State     string           `json:"state"`
	Total     int64            `json:"total"`
	Completed int64            `json:"completed"`
	ByOutcome map[string]int64 `json:"by_outcome"`
	Bytes     int64            `json:"bytes"`
	StartedAt time.Time        `json:"started_at,omitzero"`
	UpdatedAt time.Time        `json:"updated_at,omitzero"`
	Note      string           `json:"note,omitempty"`
}

// Tracker is a Sink that keeps a Snapshot of the latest run.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker returns an idle Tracker.
func NewTracker() *Tracker {
	return &Tracker{snap: Snapshot{State: StateIdle, ByOutcome: map[string]int64{}}}
}

// Consume folds the batch into the snapshot.
func (t *Tracker) Consume(_ context.Context, batch []Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, evt := range batch {
		t.apply(evt)
	}
	return nil
}

func (t *Tracker) apply(evt Event) {
	id := evt.RunUUID().String()
	if evt.Stage == StageRunStart {
		t.snap = Snapshot{
			RunID:     id,
			Phase:     evt.Phase,
			State:     StateRunning,
			Total:     evt.Total,
			ByOutcome: map[string]int64{},
			StartedAt: evt.TS,
			UpdatedAt: evt.TS,
		}
		return
	}
	if id != t.snap.RunID {
		return
	}
	t.snap.UpdatedAt = evt.TS
	switch evt.Stage {
	case StageFetchDone, StageDocIndexed:
		t.snap.Completed++
		t.snap.ByOutcome[evt.Outcome]++
		t.snap.Bytes += evt.Bytes
	case StageRunDone:
		t.snap.State = StateDone
	case StageRunError:
		t.snap.State = StateError
		t.snap.Note = evt.Note
	}
}

// Snapshot returns a copy of the current view.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := t.snap
	out.ByOutcome = maps.Clone(t.snap.ByOutcome)
	return out
}

// Close implements Sink.
func (t *Tracker) Close(context.Context) error {
	return nil
}
