package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BrandonDHaskell/datavault/server/internal/vault/notify"
	"github.com/BrandonDHaskell/datavault/server/internal/vault/service"
	"github.com/BrandonDHaskell/datavault/server/internal/vault/store"
	"github.com/BrandonDHaskell/datavault/server/internal/vault/store/memory"
	"github.com/BrandonDHaskell/datavault/server/internal/vault/types"
)

const admin = "admin-principal"

// fixedClock advances one second per call so every event has a distinct,
// predictable timestamp.
func fixedClock() func() time.Time {
	t := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

// newTestLedger builds a Ledger over an in-memory store, returning the
// store and a recorder so tests can inspect state and emitted events.
func newTestLedger(t *testing.T) (*service.Ledger, *editableStore, *notify.Recorder) {
	t.Helper()
	st := &editableStore{LedgerStore: memory.NewLedgerStore()}
	rec := notify.NewRecorder()
	l := newLedgerOver(t, st, rec)
	return l, st, rec
}

func newLedgerOver(t *testing.T, st store.LedgerStore, sink notify.Sink) *service.Ledger {
	t.Helper()
	l, err := service.NewLedger(context.Background(), admin, service.Dependencies{
		Store: st,
		Sink:  sink,
		Clock: fixedClock(),
	})
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	return l
}

// editableStore is a memory store whose reads can be edited after the
// fact, the way a row changed directly in the database would read back.
type editableStore struct {
	*memory.LedgerStore

	mu       sync.Mutex
	events   map[int64]func(*types.Event)
	requests map[int64]func(*types.AccessRequest)
	lastSeq  int64 // when > 0, events after it are hidden
}

func (s *editableStore) TamperEvent(seq int64, fn func(*types.Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.events == nil {
		s.events = make(map[int64]func(*types.Event))
	}
	s.events[seq] = fn
}

func (s *editableStore) TamperRequest(id int64, fn func(*types.AccessRequest)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requests == nil {
		s.requests = make(map[int64]func(*types.AccessRequest))
	}
	s.requests[id] = fn
}

func (s *editableStore) HideEventsAfter(seq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeq = seq
}

func (s *editableStore) Events(ctx context.Context, afterSeq int64, limit int) ([]types.Event, error) {
	evs, err := s.LedgerStore.Events(ctx, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := evs[:0]
	for _, ev := range evs {
		if s.lastSeq > 0 && ev.Seq > s.lastSeq {
			break
		}
		if fn := s.events[ev.Seq]; fn != nil {
			fn(&ev)
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *editableStore) Request(ctx context.Context, id int64) (types.AccessRequest, error) {
	req, err := s.LedgerStore.Request(ctx, id)
	if err != nil {
		return req, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn := s.requests[id]; fn != nil {
		fn(&req)
	}
	return req, nil
}
