package store

import (
	"context"
	"errors"
	"time"

	"github.com/BrandonDHaskell/datavault/server/internal/vault/types"
)

var (
	ErrNotFound         = errors.New("store: not found")
	ErrAlreadyProcessed = errors.New("store: request already processed")
	ErrInactive         = errors.New("store: record inactive")
)

// LedgerStore holds every ledger entity, index and counter.
//
// Each mutating method is atomic: the entity write, counter increment, index
// append and the sealed event (seq, prev_hash, hash) either all commit or
// none do.  The ev argument is a template built by the caller; the store
// assigns Seq, the allocated RequestID/LogID where relevant, and seals it
// onto the chain.  The committed event is returned.
type LedgerStore interface {
	// InitAuthority records principal as the ledger authority if none is
	// recorded yet, and returns the recorded authority either way.
	InitAuthority(ctx context.Context, principal string) (string, error)

	CreateRequest(ctx context.Context, req types.AccessRequest, ev types.Event) (types.Event, error)
	// ProcessRequest returns ErrNotFound for an unallocated id and
	// ErrAlreadyProcessed if the request was already resolved.
	ProcessRequest(ctx context.Context, id int64, approved bool, by string, at time.Time, ev types.Event) (types.Event, error)

	// PutDataRecord creates or replaces the record keyed by rec.DataID.
	PutDataRecord(ctx context.Context, rec types.DataRecord, ev types.Event) (types.Event, error)
	// RenameDataRecord and DeactivateDataRecord return ErrNotFound for a
	// missing record and ErrInactive for a soft-deleted one.
	RenameDataRecord(ctx context.Context, dataID, name string, ev types.Event) (types.Event, error)
	DeactivateDataRecord(ctx context.Context, dataID string, ev types.Event) (types.Event, error)

	AppendAccessLog(ctx context.Context, log types.AccessLog, ev types.Event) (types.Event, error)

	LedgerReader
}

// LedgerReader is the read side of the ledger.  Implementations must never
// expose a counter increment without its entity, or the reverse.
type LedgerReader interface {
	Request(ctx context.Context, id int64) (types.AccessRequest, error)
	UserRequestIDs(ctx context.Context, principal string) ([]int64, error)
	PendingCount(ctx context.Context) (int64, error)

	DataRecord(ctx context.Context, dataID string) (types.DataRecord, error)

	AccessLog(ctx context.Context, id int64) (types.AccessLog, error)
	DataLogIDs(ctx context.Context, dataID string) ([]int64, error)

	// ChainHead returns the seq and hash of the last appended event as
	// recorded alongside it, independently of the event rows themselves.
	// An empty ledger reports (0, chain.GenesisHash).
	ChainHead(ctx context.Context) (seq int64, hash string, err error)

	EventReader
}

// EventReader pages through the chained event log in sequence order.
type EventReader interface {
	// Events returns up to limit events with Seq > afterSeq.
	Events(ctx context.Context, afterSeq int64, limit int) ([]types.Event, error)
}

// CursorStore persists per-consumer positions in the event log.
type CursorStore interface {
	Cursor(ctx context.Context, name string) (int64, error)
	SetCursor(ctx context.Context, name string, seq int64) error
}
