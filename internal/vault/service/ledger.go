package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BrandonDHaskell/datavault/server/internal/vault/notify"
	"github.com/BrandonDHaskell/datavault/server/internal/vault/store"
	"github.com/BrandonDHaskell/datavault/server/internal/vault/types"
)

// Dependencies holds the collaborators for NewLedger.  Only Store is
// required.
type Dependencies struct {
	Store   store.LedgerStore
	Sink    notify.Sink
	Logger  *slog.Logger
	Metrics *Metrics
	Clock   func() time.Time
}

// Ledger is the single writer over a LedgerStore.
//
// Every mutation runs authorize, apply and emit under one lock, so the
// order of committed events is the order callers observe.  Reads go straight
// to the store.
type Ledger struct {
	mu sync.Mutex

	guard   *AuthorityGuard
	store   store.LedgerStore
	sink    notify.Sink
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewLedger binds a ledger to authority.  A store that already records a
// different authority is rejected with ErrAuthorityMismatch.
func NewLedger(ctx context.Context, authority string, deps Dependencies) (*Ledger, error) {
	authority = strings.TrimSpace(authority)
	if authority == "" {
		return nil, fmt.Errorf("%w: authority is required", ErrInvalidArgument)
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidArgument)
	}

	recorded, err := deps.Store.InitAuthority(ctx, authority)
	if err != nil {
		return nil, fmt.Errorf("NewLedger init authority: %w", err)
	}
	if recorded != authority {
		return nil, fmt.Errorf("%w: ledger belongs to %q", ErrAuthorityMismatch, recorded)
	}

	l := &Ledger{
		guard:   NewAuthorityGuard(authority),
		store:   deps.Store,
		sink:    deps.Sink,
		logger:  deps.Logger,
		metrics: deps.Metrics,
		now:     deps.Clock,
	}
	if l.sink == nil {
		l.sink = notify.Discard
	}
	if l.logger == nil {
		l.logger = slog.New(slog.DiscardHandler)
	}
	if l.now == nil {
		l.now = time.Now
	}

	pending, err := l.store.PendingCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewLedger pending count: %w", err)
	}
	l.metrics.setPending(pending)

	return l, nil
}

// Authority returns the principal allowed to run privileged operations.
func (l *Ledger) Authority() string { return l.guard.Authority() }

// mutation describes one write.  apply receives the operation timestamp and
// returns the committed event.
type mutation struct {
	op         string
	caller     string
	privileged bool
	validate   func() error
	apply      func(ctx context.Context, at time.Time) (types.Event, error)
}

func (l *Ledger) mutate(ctx context.Context, m mutation) (types.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev, err := l.applyLocked(ctx, m)
	l.metrics.observeOp(m.op, err)
	if err != nil {
		return types.Receipt{}, err
	}

	if err := l.sink.Emit(ctx, ev); err != nil {
		l.logger.Warn("event sink failed",
			"op", m.op, "seq", ev.Seq, "kind", ev.Kind, "err", err)
	}

	l.logger.Debug("ledger mutation",
		"op", m.op, "seq", ev.Seq, "kind", ev.Kind, "hash", ev.Hash)

	return types.Receipt{
		Seq:       ev.Seq,
		EventHash: ev.Hash,
		RequestID: ev.RequestID,
		LogID:     ev.LogID,
	}, nil
}

func (l *Ledger) applyLocked(ctx context.Context, m mutation) (types.Event, error) {
	if m.privileged {
		if err := l.guard.Authorize(m.caller); err != nil {
			return types.Event{}, err
		}
	}
	if m.validate != nil {
		if err := m.validate(); err != nil {
			return types.Event{}, err
		}
	}
	return m.apply(ctx, l.timestamp())
}

// timestamp is the current time truncated to the precision the chain hashes.
func (l *Ledger) timestamp() time.Time {
	return l.now().UTC().Truncate(time.Millisecond)
}

func newEvent(kind types.EventKind, principal string, at time.Time) types.Event {
	return types.Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Principal: principal,
		At:        at,
	}
}

func required(name, v string) error {
	if v == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidArgument, name)
	}
	return nil
}
