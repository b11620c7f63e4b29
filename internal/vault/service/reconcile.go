package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/BrandonDHaskell/datavault/server/internal/vault/chain"
	"github.com/BrandonDHaskell/datavault/server/internal/vault/store"
	"github.com/BrandonDHaskell/datavault/server/internal/vault/types"
)

// ledgerState is the entity state implied by a verified event sequence.
// Each entity remembers the seq of the last event that shaped it, which is
// where a mismatch gets reported.
type ledgerState struct {
	requests   []types.AccessRequest // index i holds request id i+1
	requestSeq []int64
	logs       []types.AccessLog // index i holds log id i+1
	logSeq     []int64
	records    map[string]types.DataRecord
	recordSeq  map[string]int64

	userRequests map[string][]int64
	dataLogs     map[string][]int64
	pending      int64
	lastSeq      int64
}

func newLedgerState() *ledgerState {
	return &ledgerState{
		records:      make(map[string]types.DataRecord),
		recordSeq:    make(map[string]int64),
		userRequests: make(map[string][]int64),
		dataLogs:     make(map[string][]int64),
	}
}

// apply folds ev into the state.  It returns a non-empty reason when ev
// cannot follow the events applied before it.
func (s *ledgerState) apply(ev types.Event) string {
	s.lastSeq = ev.Seq

	switch ev.Kind {
	case types.EventRequestCreated:
		if ev.RequestID != int64(len(s.requests))+1 {
			return fmt.Sprintf("request id %d out of order", ev.RequestID)
		}
		s.requests = append(s.requests, types.AccessRequest{
			ID:        ev.RequestID,
			Requester: ev.Principal,
			Username:  ev.Username,
			DataID:    ev.DataID,
			DataName:  ev.DataName,
			CreatedAt: ev.At,
		})
		s.requestSeq = append(s.requestSeq, ev.Seq)
		s.userRequests[ev.Principal] = append(s.userRequests[ev.Principal], ev.RequestID)
		s.pending++

	case types.EventRequestProcessed:
		i := ev.RequestID - 1
		if i < 0 || i >= int64(len(s.requests)) || s.requests[i].Processed {
			return fmt.Sprintf("request %d cannot be processed at this point", ev.RequestID)
		}
		at := ev.At
		s.requests[i].Approved = ev.Approved
		s.requests[i].Processed = true
		s.requests[i].ProcessedBy = ev.Principal
		s.requests[i].ProcessedAt = &at
		s.requestSeq[i] = ev.Seq
		s.pending--

	case types.EventDataUploaded:
		s.records[ev.DataID] = types.DataRecord{
			DataID:     ev.DataID,
			DataName:   ev.DataName,
			UploadedBy: ev.Principal,
			UploadedAt: ev.At,
			StorageRef: ev.StorageRef,
			Active:     true,
		}
		s.recordSeq[ev.DataID] = ev.Seq

	case types.EventDataModified, types.EventDataDeleted:
		rec, ok := s.records[ev.DataID]
		if !ok || !rec.Active {
			return fmt.Sprintf("%s on missing or inactive record %q", ev.Kind, ev.DataID)
		}
		if ev.Kind == types.EventDataModified {
			rec.DataName = ev.DataName
		} else {
			rec.Active = false
		}
		s.records[ev.DataID] = rec
		s.recordSeq[ev.DataID] = ev.Seq

	case types.EventDataAccessed:
		if ev.LogID != int64(len(s.logs))+1 {
			return fmt.Sprintf("log id %d out of order", ev.LogID)
		}
		s.logs = append(s.logs, types.AccessLog{
			ID:        ev.LogID,
			Principal: ev.Principal,
			Username:  ev.Username,
			DataID:    ev.DataID,
			Action:    ev.Action,
			At:        ev.At,
		})
		s.logSeq = append(s.logSeq, ev.Seq)
		s.dataLogs[ev.DataID] = append(s.dataLogs[ev.DataID], ev.LogID)

	default:
		return fmt.Sprintf("unknown event kind %q", ev.Kind)
	}
	return ""
}

// reconcile compares the entity tables served by r with the state. It
// returns the first disagreement as a break, or nil when everything matches.
func (s *ledgerState) reconcile(ctx context.Context, r store.LedgerReader) (*chain.BreakError, error) {
	for i, want := range s.requests {
		got, err := r.Request(ctx, want.ID)
		if errors.Is(err, store.ErrNotFound) {
			return &chain.BreakError{Seq: s.requestSeq[i], Reason: fmt.Sprintf("request %d missing", want.ID)}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reconcile request %d: %w", want.ID, err)
		}
		if !sameRequest(got, want) {
			return &chain.BreakError{Seq: s.requestSeq[i], Reason: fmt.Sprintf("request %d does not match its events", want.ID)}, nil
		}
	}
	extra := int64(len(s.requests)) + 1
	if _, err := r.Request(ctx, extra); err == nil {
		return &chain.BreakError{Seq: s.lastSeq + 1, Reason: fmt.Sprintf("request %d has no event", extra)}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("reconcile request %d: %w", extra, err)
	}

	for _, principal := range slices.Sorted(maps.Keys(s.userRequests)) {
		want := s.userRequests[principal]
		got, err := r.UserRequestIDs(ctx, principal)
		if err != nil {
			return nil, fmt.Errorf("reconcile requests of %q: %w", principal, err)
		}
		if !slices.Equal(got, want) {
			return &chain.BreakError{Seq: s.requestSeq[want[len(want)-1]-1], Reason: fmt.Sprintf("request index of %q does not match its events", principal)}, nil
		}
	}

	pending, err := r.PendingCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile pending: %w", err)
	}
	if pending != s.pending {
		return &chain.BreakError{Seq: s.lastSeq, Reason: fmt.Sprintf("pending count %d, events imply %d", pending, s.pending)}, nil
	}

	for _, dataID := range slices.Sorted(maps.Keys(s.records)) {
		want := s.records[dataID]
		got, err := r.DataRecord(ctx, dataID)
		if errors.Is(err, store.ErrNotFound) {
			return &chain.BreakError{Seq: s.recordSeq[dataID], Reason: fmt.Sprintf("record %q missing", dataID)}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reconcile record %q: %w", dataID, err)
		}
		if !sameRecord(got, want) {
			return &chain.BreakError{Seq: s.recordSeq[dataID], Reason: fmt.Sprintf("record %q does not match its events", dataID)}, nil
		}
	}

	for i, want := range s.logs {
		got, err := r.AccessLog(ctx, want.ID)
		if errors.Is(err, store.ErrNotFound) {
			return &chain.BreakError{Seq: s.logSeq[i], Reason: fmt.Sprintf("access log %d missing", want.ID)}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reconcile access log %d: %w", want.ID, err)
		}
		if !sameLog(got, want) {
			return &chain.BreakError{Seq: s.logSeq[i], Reason: fmt.Sprintf("access log %d does not match its events", want.ID)}, nil
		}
	}
	extra = int64(len(s.logs)) + 1
	if _, err := r.AccessLog(ctx, extra); err == nil {
		return &chain.BreakError{Seq: s.lastSeq + 1, Reason: fmt.Sprintf("access log %d has no event", extra)}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("reconcile access log %d: %w", extra, err)
	}

	dataIDs := slices.Sorted(maps.Keys(s.dataLogs))
	for _, dataID := range slices.Sorted(maps.Keys(s.records)) {
		if _, ok := s.dataLogs[dataID]; !ok {
			dataIDs = append(dataIDs, dataID)
		}
	}
	for _, dataID := range dataIDs {
		want := s.dataLogs[dataID]
		got, err := r.DataLogIDs(ctx, dataID)
		if err != nil {
			return nil, fmt.Errorf("reconcile logs of %q: %w", dataID, err)
		}
		if !slices.Equal(got, want) {
			seq := s.recordSeq[dataID]
			if n := len(want); n > 0 {
				seq = s.logSeq[want[n-1]-1]
			}
			return &chain.BreakError{Seq: seq, Reason: fmt.Sprintf("access log index of %q does not match its events", dataID)}, nil
		}
	}

	return nil, nil
}

func sameRequest(a, b types.AccessRequest) bool {
	if a.ID != b.ID || a.Requester != b.Requester || a.Username != b.Username ||
		a.DataID != b.DataID || a.DataName != b.DataName || !a.CreatedAt.Equal(b.CreatedAt) ||
		a.Approved != b.Approved || a.Processed != b.Processed || a.ProcessedBy != b.ProcessedBy {
		return false
	}
	if (a.ProcessedAt == nil) != (b.ProcessedAt == nil) {
		return false
	}
	return a.ProcessedAt == nil || a.ProcessedAt.Equal(*b.ProcessedAt)
}

func sameRecord(a, b types.DataRecord) bool {
	return a.DataID == b.DataID && a.DataName == b.DataName && a.UploadedBy == b.UploadedBy &&
		a.UploadedAt.Equal(b.UploadedAt) && a.StorageRef == b.StorageRef && a.Active == b.Active
}

func sameLog(a, b types.AccessLog) bool {
	return a.ID == b.ID && a.Principal == b.Principal && a.Username == b.Username &&
		a.DataID == b.DataID && a.Action == b.Action && a.At.Equal(b.At)
}
