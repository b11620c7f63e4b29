package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BrandonDHaskell/datavault/server/internal/vault/notify"
	"github.com/BrandonDHaskell/datavault/server/internal/vault/store"
)

// RelayConfig holds the parameters for NewRelay.
type RelayConfig struct {
	// Interval is how often the relay polls for new events.  Defaults to 2s.
	Interval time.Duration

	// BatchSize caps the events read per poll and publisher.  Defaults to 200.
	BatchSize int
}

// Relay forwards committed ledger events to external publishers.
//
// Each publisher has its own cursor in the CursorStore.  Events are
// published in sequence order and the cursor only advances past events the
// publisher accepted, so delivery is at-least-once and never reordered.
type Relay struct {
	events     store.EventReader
	cursors    store.CursorStore
	publishers []notify.Publisher
	batch      int
	logger     *slog.Logger
	metrics    *Metrics

	t ticker
}

// NewRelay creates a relay but does not start it.
func NewRelay(events store.EventReader, cursors store.CursorStore, publishers []notify.Publisher, cfg RelayConfig, logger *slog.Logger, metrics *Metrics) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := &Relay{
		events:     events,
		cursors:    cursors,
		publishers: publishers,
		batch:      cfg.BatchSize,
		logger:     logger,
		metrics:    metrics,
	}
	r.t = ticker{interval: cfg.Interval, tick: r.tick}
	return r
}

// Start begins the polling loop.  With no publishers configured it only
// logs and returns.
func (r *Relay) Start(ctx context.Context) {
	if len(r.publishers) == 0 {
		r.logger.Info("event relay disabled (no publishers)")
		return
	}
	r.t.start(ctx)

	names := make([]string, 0, len(r.publishers))
	for _, p := range r.publishers {
		names = append(names, p.Name())
	}
	r.logger.Info("event relay started", "publishers", names, "interval", r.t.interval)
}

// Stop signals the relay to exit and waits for it to finish.
func (r *Relay) Stop() {
	r.t.stop()
}

func (r *Relay) tick(ctx context.Context) {
	if err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
		r.logger.Warn("event relay pass incomplete", "err", err)
	}
}

// RunOnce drains every publisher up to the current head of the event log.
func (r *Relay) RunOnce(ctx context.Context) error {
	var errs []error
	for _, p := range r.publishers {
		if err := r.drain(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (r *Relay) drain(ctx context.Context, p notify.Publisher) error {
	cursor, err := r.cursors.Cursor(ctx, p.Name())
	if err != nil {
		return fmt.Errorf("read cursor: %w", err)
	}

	for {
		evs, err := r.events.Events(ctx, cursor, r.batch)
		if err != nil {
			return fmt.Errorf("read events: %w", err)
		}
		if len(evs) == 0 {
			return nil
		}

		sent := 0
		var pubErr error
		for _, ev := range evs {
			if err := p.Publish(ctx, ev); err != nil {
				pubErr = fmt.Errorf("publish seq %d: %w", ev.Seq, err)
				break
			}
			cursor = ev.Seq
			sent++
		}

		r.metrics.relayPublished(p.Name(), sent)
		if sent > 0 {
			if err := r.cursors.SetCursor(ctx, p.Name(), cursor); err != nil {
				return fmt.Errorf("save cursor: %w", err)
			}
		}
		if pubErr != nil {
			r.metrics.relayFailed(p.Name())
			return pubErr
		}
		if len(evs) < r.batch {
			return nil
		}
	}
}
