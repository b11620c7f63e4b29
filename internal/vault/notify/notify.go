// Package notify delivers committed ledger events to subscribers.
//
// A Sink is called synchronously by the ledger after each commit and must
// not block on the network.  A Publisher is driven asynchronously by the
// relay from the durable event log and may.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/BrandonDHaskell/datavault/server/internal/vault/types"
)

type Sink interface {
	Emit(ctx context.Context, ev types.Event) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, ev types.Event) error

func (f SinkFunc) Emit(ctx context.Context, ev types.Event) error { return f(ctx, ev) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, types.Event) error { return nil })

// Fanout emits to every sink in order and joins their errors.  A failing
// sink does not stop the rest.
type Fanout []Sink

func (f Fanout) Emit(ctx context.Context, ev types.Event) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps every emitted event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []types.Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Emit(_ context.Context, ev types.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded events in emission order.
func (r *Recorder) Events() []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Event, len(r.events))
	copy(out, r.events)
	return out
}

// LogSink writes one structured line per event.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Emit(ctx context.Context, ev types.Event) error {
	s.Logger.InfoContext(ctx, "ledger event",
		"seq", ev.Seq,
		"kind", ev.Kind,
		"principal", ev.Principal,
		"request_id", ev.RequestID,
		"log_id", ev.LogID,
		"data_id", ev.DataID,
		"hash", ev.Hash,
	)
	return nil
}
