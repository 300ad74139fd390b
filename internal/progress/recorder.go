package progress

import (
	"net/url"
	"strings"
	"time"
)

// Recorder stamps events for one run with its id, phase and clock. A nil
// Recorder, or one built over a nil Emitter, discards everything.
type Recorder struct {
	emitter Emitter
	runID   [16]byte
	phase   Phase
	now     func() time.Time
	started time.Time
}

// NewRecorder returns a Recorder for a new run.
func NewRecorder(emitter Emitter, phase Phase) *Recorder {
	return &Recorder{
		emitter: emitter,
		runID:   NewRunID(),
		phase:   phase,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RunID returns the run identifier.
func (r *Recorder) RunID() [16]byte {
	return r.runID
}

// Start announces the run with its planned item count.
func (r *Recorder) Start(total int) {
	if r == nil {
		return
	}
	r.started = r.now()
	r.emit(Event{Stage: StageRunStart, Total: int64(total)})
}

// Fetched records one completed fetch.
func (r *Recorder) Fetched(rawURL, outcome string, code int, bytesStored int, dur time.Duration) {
	r.emit(Event{
		Stage:       StageFetchDone,
		Site:        siteOf(rawURL),
		URL:         rawURL,
		Outcome:     outcome,
		Bytes:       int64(bytesStored),
		StatusClass: ClassifyStatus(code),
		Dur:         dur,
	})
}

// Indexed records one document considered by the index builder.
func (r *Recorder) Indexed(rawURL, result string) {
	r.emit(Event{Stage: StageDocIndexed, URL: rawURL, Outcome: result})
}

// Finish closes the run, as an error when err is non-nil.
func (r *Recorder) Finish(err error) {
	if r == nil {
		return
	}
	evt := Event{Stage: StageRunDone}
	if err != nil {
		evt.Stage = StageRunError
		evt.Note = err.Error()
	}
	if !r.started.IsZero() {
		evt.Dur = r.now().Sub(r.started)
	}
	r.emit(evt)
}

func (r *Recorder) emit(evt Event) {
	if r == nil || r.emitter == nil {
		return
	}
	evt.RunID = r.runID
	evt.Phase = r.phase
	evt.TS = r.now()
	r.emitter.Emit(evt)
}

func siteOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
