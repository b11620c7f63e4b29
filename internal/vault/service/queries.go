package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BrandonDHaskell/datavault/server/internal/vault/chain"
	"github.com/BrandonDHaskell/datavault/server/internal/vault/store"
	"github.com/BrandonDHaskell/datavault/server/internal/vault/types"
)

const (
	DefaultEventsLimit = 100
	MaxEventsLimit     = 1000

	verifyPageSize = 500
)

func (l *Ledger) UserRequests(ctx context.Context, principal string) ([]int64, error) {
	return l.store.UserRequestIDs(ctx, strings.TrimSpace(principal))
}

func (l *Ledger) DataAccessLogs(ctx context.Context, dataID string) ([]int64, error) {
	return l.store.DataLogIDs(ctx, strings.TrimSpace(dataID))
}

func (l *Ledger) RequestDetails(ctx context.Context, requestID int64) (types.AccessRequest, error) {
	req, err := l.store.Request(ctx, requestID)
	if errors.Is(err, store.ErrNotFound) {
		return types.AccessRequest{}, ErrRequestNotFound
	}
	return req, err
}

func (l *Ledger) PendingRequestsCount(ctx context.Context) (int64, error) {
	return l.store.PendingCount(ctx)
}

// DataRecord returns the record for dataID, including soft-deleted ones.
func (l *Ledger) DataRecord(ctx context.Context, dataID string) (types.DataRecord, error) {
	rec, err := l.store.DataRecord(ctx, strings.TrimSpace(dataID))
	if errors.Is(err, store.ErrNotFound) {
		return types.DataRecord{}, ErrRecordNotFoundOrInactive
	}
	return rec, err
}

func (l *Ledger) AccessLog(ctx context.Context, logID int64) (types.AccessLog, error) {
	log, err := l.store.AccessLog(ctx, logID)
	if errors.Is(err, store.ErrNotFound) {
		return types.AccessLog{}, ErrAccessLogNotFound
	}
	return log, err
}

// Events returns up to limit events after afterSeq and the cursor to pass
// for the next page.
func (l *Ledger) Events(ctx context.Context, afterSeq int64, limit int) ([]types.Event, int64, error) {
	if afterSeq < 0 {
		afterSeq = 0
	}
	switch {
	case limit <= 0:
		limit = DefaultEventsLimit
	case limit > MaxEventsLimit:
		limit = MaxEventsLimit
	}

	evs, err := l.store.Events(ctx, afterSeq, limit)
	if err != nil {
		return nil, afterSeq, err
	}
	next := afterSeq
	if n := len(evs); n > 0 {
		next = evs[n-1].Seq
	}
	return evs, next, nil
}

// VerifyChain recomputes every event hash in sequence order, checks that
// the last event is the head the store recorded with it, and replays the
// events to confirm the request, record and access-log tables still match
// them.  A broken chain is reported in the result, not as an error.
//
// It holds the write lock so no mutation lands between the event pages and
// the entity reads.
func (l *Ledger) VerifyChain(ctx context.Context) (types.ChainReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	v := chain.NewVerifier()
	state := newLedgerState()

	broken := func(brk *chain.BreakError) types.ChainReport {
		report := types.ChainReport{
			Verified: false,
			Count:    v.Count(),
			HeadHash: v.Head(),
			BrokenAt: brk.Seq,
			Reason:   brk.Reason,
		}
		l.metrics.setChain(report)
		return report
	}

	var after int64
	for {
		page, err := l.store.Events(ctx, after, verifyPageSize)
		if err != nil {
			return types.ChainReport{}, fmt.Errorf("VerifyChain read: %w", err)
		}
		for _, ev := range page {
			if err := v.Add(ev); err != nil {
				var brk *chain.BreakError
				if !errors.As(err, &brk) {
					return types.ChainReport{}, err
				}
				return broken(brk), nil
			}
			if reason := state.apply(ev); reason != "" {
				return broken(&chain.BreakError{Seq: ev.Seq, Reason: reason}), nil
			}
		}
		if len(page) < verifyPageSize {
			break
		}
		after = page[len(page)-1].Seq
	}

	headSeq, headHash, err := l.store.ChainHead(ctx)
	if err != nil {
		return types.ChainReport{}, fmt.Errorf("VerifyChain head: %w", err)
	}
	switch {
	case headSeq != v.Count():
		return broken(&chain.BreakError{
			Seq:    min(headSeq, v.Count()) + 1,
			Reason: fmt.Sprintf("log ends at seq %d but head is seq %d", v.Count(), headSeq),
		}), nil
	case headHash != v.Head():
		return broken(&chain.BreakError{Seq: headSeq, Reason: "head hash does not match last event"}), nil
	}

	brk, err := state.reconcile(ctx, l.store)
	if err != nil {
		return types.ChainReport{}, fmt.Errorf("VerifyChain %w", err)
	}
	if brk != nil {
		return broken(brk), nil
	}

	report := types.ChainReport{Verified: true, Count: v.Count(), HeadHash: v.Head()}
	l.metrics.setChain(report)
	return report, nil
}
