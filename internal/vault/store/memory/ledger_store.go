package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/datavault/server/internal/vault/chain"
	"github.com/BrandonDHaskell/datavault/server/internal/vault/store"
	"github.com/BrandonDHaskell/datavault/server/internal/vault/types"
)

// LedgerStore is an in-memory ledger.  It is intended for tests and dev
// environments; all state is lost on exit.
//
// Every mutation validates before it writes, under one lock, so a failed
// call leaves nothing behind.
type LedgerStore struct {
	mu sync.RWMutex

	authority string

	requests []types.AccessRequest // index i holds request id i+1
	logs     []types.AccessLog     // index i holds log id i+1
	records  map[string]types.DataRecord
	events   []types.Event
	headSeq  int64
	headHash string

	userRequests map[string][]int64
	dataLogs     map[string][]int64
	pending      int64

	cursors map[string]int64
}

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		records:      make(map[string]types.DataRecord),
		userRequests: make(map[string][]int64),
		dataLogs:     make(map[string][]int64),
		cursors:      make(map[string]int64),
		headHash:     chain.GenesisHash,
	}
}

func (s *LedgerStore) InitAuthority(_ context.Context, principal string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.authority == "" {
		s.authority = principal
	}
	return s.authority, nil
}

func (s *LedgerStore) CreateRequest(_ context.Context, req types.AccessRequest, ev types.Event) (types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req.ID = int64(len(s.requests)) + 1
	req.Processed = false
	req.Approved = false
	req.ProcessedBy = ""
	req.ProcessedAt = nil

	ev.RequestID = req.ID
	if err := s.sealLocked(&ev); err != nil {
		return types.Event{}, err
	}

	s.requests = append(s.requests, req)
	s.userRequests[req.Requester] = append(s.userRequests[req.Requester], req.ID)
	s.pending++
	s.appendLocked(ev)
	return ev, nil
}

func (s *LedgerStore) ProcessRequest(_ context.Context, id int64, approved bool, by string, at time.Time, ev types.Event) (types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id < 1 || id > int64(len(s.requests)) {
		return types.Event{}, store.ErrNotFound
	}
	req := s.requests[id-1]
	if req.Processed {
		return types.Event{}, store.ErrAlreadyProcessed
	}

	ev.RequestID = id
	ev.DataID = req.DataID
	if err := s.sealLocked(&ev); err != nil {
		return types.Event{}, err
	}

	processedAt := at
	req.Approved = approved
	req.Processed = true
	req.ProcessedBy = by
	req.ProcessedAt = &processedAt

	s.requests[id-1] = req
	s.pending--
	s.appendLocked(ev)
	return ev, nil
}

func (s *LedgerStore) PutDataRecord(_ context.Context, rec types.DataRecord, ev types.Event) (types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sealLocked(&ev); err != nil {
		return types.Event{}, err
	}

	rec.Active = true
	s.records[rec.DataID] = rec
	s.appendLocked(ev)
	return ev, nil
}

func (s *LedgerStore) RenameDataRecord(_ context.Context, dataID, name string, ev types.Event) (types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.activeRecordLocked(dataID)
	if err != nil {
		return types.Event{}, err
	}
	if err := s.sealLocked(&ev); err != nil {
		return types.Event{}, err
	}

	rec.DataName = name
	s.records[dataID] = rec
	s.appendLocked(ev)
	return ev, nil
}

func (s *LedgerStore) DeactivateDataRecord(_ context.Context, dataID string, ev types.Event) (types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.activeRecordLocked(dataID)
	if err != nil {
		return types.Event{}, err
	}
	ev.DataName = rec.DataName
	if err := s.sealLocked(&ev); err != nil {
		return types.Event{}, err
	}

	rec.Active = false
	s.records[dataID] = rec
	s.appendLocked(ev)
	return ev, nil
}

func (s *LedgerStore) AppendAccessLog(_ context.Context, log types.AccessLog, ev types.Event) (types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.ID = int64(len(s.logs)) + 1
	ev.LogID = log.ID
	if err := s.sealLocked(&ev); err != nil {
		return types.Event{}, err
	}

	s.logs = append(s.logs, log)
	s.dataLogs[log.DataID] = append(s.dataLogs[log.DataID], log.ID)
	s.appendLocked(ev)
	return ev, nil
}

// ── Reads ────────────────────────────────────────────────────────────────────

func (s *LedgerStore) Request(_ context.Context, id int64) (types.AccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 1 || id > int64(len(s.requests)) {
		return types.AccessRequest{}, store.ErrNotFound
	}
	req := s.requests[id-1]
	if req.ProcessedAt != nil {
		t := *req.ProcessedAt
		req.ProcessedAt = &t
	}
	return req, nil
}

func (s *LedgerStore) UserRequestIDs(_ context.Context, principal string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyIDs(s.userRequests[principal]), nil
}

func (s *LedgerStore) PendingCount(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending, nil
}

func (s *LedgerStore) DataRecord(_ context.Context, dataID string) (types.DataRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[dataID]
	if !ok {
		return types.DataRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (s *LedgerStore) AccessLog(_ context.Context, id int64) (types.AccessLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 1 || id > int64(len(s.logs)) {
		return types.AccessLog{}, store.ErrNotFound
	}
	return s.logs[id-1], nil
}

func (s *LedgerStore) DataLogIDs(_ context.Context, dataID string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyIDs(s.dataLogs[dataID]), nil
}

func (s *LedgerStore) Events(_ context.Context, afterSeq int64, limit int) ([]types.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if afterSeq < 0 {
		afterSeq = 0
	}
	if afterSeq >= int64(len(s.events)) {
		return []types.Event{}, nil
	}
	rest := s.events[afterSeq:]
	if limit > 0 && len(rest) > limit {
		rest = rest[:limit]
	}
	out := make([]types.Event, len(rest))
	copy(out, rest)
	return out, nil
}

func (s *LedgerStore) Cursor(_ context.Context, name string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursors[name], nil
}

func (s *LedgerStore) SetCursor(_ context.Context, name string, seq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[name] = seq
	return nil
}

func (s *LedgerStore) ChainHead(_ context.Context) (int64, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.headSeq, s.headHash, nil
}

func (s *LedgerStore) activeRecordLocked(dataID string) (types.DataRecord, error) {
	rec, ok := s.records[dataID]
	if !ok {
		return types.DataRecord{}, store.ErrNotFound
	}
	if !rec.Active {
		return types.DataRecord{}, store.ErrInactive
	}
	return rec, nil
}

// sealLocked assigns the next sequence number and links ev to the head.
// It does not append; callers append once every other check has passed.
func (s *LedgerStore) sealLocked(ev *types.Event) error {
	ev.Seq = s.headSeq + 1
	return chain.Seal(ev, s.headHash)
}

func (s *LedgerStore) appendLocked(ev types.Event) {
	s.events = append(s.events, ev)
	s.headSeq = ev.Seq
	s.headHash = ev.Hash
}

func copyIDs(ids []int64) []int64 {
	out := make([]int64, len(ids))
	copy(out, ids)
	return out
}
