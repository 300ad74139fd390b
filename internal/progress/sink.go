package progress

import "context"

// Sink receives flushed batches from a Hub. Consume may be called many times
// from the hub goroutine; Close is called once when the hub shuts down.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter is what the fetch and index stages report to.
type Emitter interface {
	Emit(evt Event)
}
