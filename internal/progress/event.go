// Package progress defines the events emitted while fetching and indexing.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart   Stage = "RUN_START"
	StageRunDone    Stage = "RUN_DONE"
	StageRunError   Stage = "RUN_ERROR"
	StageFetchDone  Stage = "FETCH_DONE"
	StageDocIndexed Stage = "DOC_INDEXED"
)

// Phase names the pipeline stage a run belongs to.
type Phase string

// Supported phases.
const (
	PhaseFetch Phase = "fetch"
	PhaseIndex Phase = "index"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for fetch completions.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures a single unit of pipeline progress.
type Event struct {
	// RunID identifies one fetch or index run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Phase is the pipeline stage of the run.
	Phase Phase
	// Site scopes fetch events to a host label.
	Site string
	// URL is the seed or document URL, if any.
	URL string
	// Outcome is the fetch kind or the index result label.
	Outcome string
	// Bytes carries the stored body size.
	Bytes int64
	// StatusClass groups HTTP response codes.
	StatusClass StatusClass
	// Total is the planned number of items, set on RUN_START.
	Total int64
	// Dur captures per-item or whole-run latency.
	Dur time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
		if e.Phase == "" {
			return errors.New("run events require phase")
		}
	case StageFetchDone:
		if e.Site == "" {
			return errors.New("fetch done requires site")
		}
		if e.Outcome == "" {
			return errors.New("fetch done requires outcome")
		}
	case StageDocIndexed:
		if e.Outcome == "" {
			return errors.New("doc indexed requires outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// NewRunID returns a fresh random run identifier.
func NewRunID() [16]byte {
	return UUIDToBytes(uuid.New())
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ClassifyStatus groups HTTP status codes for fetch events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
