// Package fetcher defines the per-URL fetch contract and its tagged outcome.
package fetcher

import (
	"context"
	"time"

	"github.com/JakeFAU/seedindex/internal/ledger"
)

// Kind classifies a fetch attempt. Exactly one applies per attempt.
type Kind int

const (
	// Success is a response with status below 400.
	Success Kind = iota + 1
	// HTTPError is a response with status 400 or above.
	HTTPError
	// NetworkFailure is an attempt that produced no response.
	NetworkFailure
	// Fatal is a local failure while handling the URL.
	Fatal
)

// String implements fmt.Stringer and doubles as the metrics label.
func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case HTTPError:
		return "http_error"
	case NetworkFailure:
		return "network_failure"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome is the result of fetching one URL. Failures are values, not errors.
type Outcome struct {
	URL        string
	Kind       Kind
	StatusCode int
	Message    string
	Body       []byte
	Duration   time.Duration
	// Truncated marks a success whose body reached the fetcher's size cap.
	Truncated bool
}

// Status converts the outcome into its ledger representation.
func (o Outcome) Status() ledger.Status {
	switch o.Kind {
	case Success:
		return ledger.Success(o.StatusCode)
	case HTTPError:
		return ledger.Error(ledger.CategoryHTTP, o.Message)
	case NetworkFailure:
		return ledger.Error(ledger.CategoryNetwork, o.Message)
	default:
		return ledger.Fatal(o.Message)
	}
}

// Fetcher retrieves a single URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) Outcome
}
