package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/datavault/server/internal/db"
	"github.com/BrandonDHaskell/datavault/server/internal/vault/store"
	"github.com/BrandonDHaskell/datavault/server/internal/vault/types"
)

const authorityKey = "authority"

// LedgerStore is the SQLite-backed ledger.  Writes go through the shared
// db.Worker; reads use the pool directly.
type LedgerStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewLedgerStore(db *sql.DB, writer *dbpkg.Worker) *LedgerStore {
	return &LedgerStore{db: db, writer: writer}
}

func (s *LedgerStore) InitAuthority(ctx context.Context, principal string) (string, error) {
	var recorded string
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO ledger_meta(key, value) VALUES (?, ?);
`, authorityKey, principal); err != nil {
			return fmt.Errorf("InitAuthority insert: %w", err)
		}
		if err := tx.QueryRowContext(ctx, `
SELECT value FROM ledger_meta WHERE key = ?;
`, authorityKey).Scan(&recorded); err != nil {
			return fmt.Errorf("InitAuthority select: %w", err)
		}
		return nil
	})
	return recorded, err
}

func (s *LedgerStore) CreateRequest(ctx context.Context, req types.AccessRequest, ev types.Event) (types.Event, error) {
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		id, err := nextCounter(ctx, tx, "request")
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO access_requests(
  request_id, requester, username, data_id, data_name, created_at_ms
) VALUES (?, ?, ?, ?, ?, ?);
`, id, req.Requester, req.Username, req.DataID, req.DataName, req.CreatedAt.UTC().UnixMilli()); err != nil {
			return fmt.Errorf("CreateRequest insert: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO user_request_index(principal, request_id) VALUES (?, ?);
`, req.Requester, id); err != nil {
			return fmt.Errorf("CreateRequest index: %w", err)
		}

		ev.RequestID = id
		return appendEvent(ctx, tx, &ev)
	})
	if err != nil {
		return types.Event{}, err
	}
	return ev, nil
}

func (s *LedgerStore) ProcessRequest(ctx context.Context, id int64, approved bool, by string, at time.Time, ev types.Event) (types.Event, error) {
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var (
			processed int
			dataID    string
		)
		err := tx.QueryRowContext(ctx, `
SELECT processed, data_id FROM access_requests WHERE request_id = ?;
`, id).Scan(&processed, &dataID)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("ProcessRequest select: %w", err)
		}
		if processed == 1 {
			return store.ErrAlreadyProcessed
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE access_requests
SET approved        = ?,
    processed       = 1,
    processed_by    = ?,
    processed_at_ms = ?
WHERE request_id = ?;
`, boolInt(approved), by, at.UTC().UnixMilli(), id); err != nil {
			return fmt.Errorf("ProcessRequest update: %w", err)
		}

		ev.RequestID = id
		ev.DataID = dataID
		return appendEvent(ctx, tx, &ev)
	})
	if err != nil {
		return types.Event{}, err
	}
	return ev, nil
}

func (s *LedgerStore) PutDataRecord(ctx context.Context, rec types.DataRecord, ev types.Event) (types.Event, error) {
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO data_records(data_id, data_name, uploaded_by, uploaded_at_ms, storage_ref, active)
VALUES (?, ?, ?, ?, ?, 1)
ON CONFLICT(data_id) DO UPDATE SET
  data_name      = excluded.data_name,
  uploaded_by    = excluded.uploaded_by,
  uploaded_at_ms = excluded.uploaded_at_ms,
  storage_ref    = excluded.storage_ref,
  active         = 1;
`, rec.DataID, rec.DataName, rec.UploadedBy, rec.UploadedAt.UTC().UnixMilli(), rec.StorageRef); err != nil {
			return fmt.Errorf("PutDataRecord upsert: %w", err)
		}
		return appendEvent(ctx, tx, &ev)
	})
	if err != nil {
		return types.Event{}, err
	}
	return ev, nil
}

func (s *LedgerStore) RenameDataRecord(ctx context.Context, dataID, name string, ev types.Event) (types.Event, error) {
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := activeRecordName(ctx, tx, dataID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
UPDATE data_records SET data_name = ? WHERE data_id = ?;
`, name, dataID); err != nil {
			return fmt.Errorf("RenameDataRecord update: %w", err)
		}
		return appendEvent(ctx, tx, &ev)
	})
	if err != nil {
		return types.Event{}, err
	}
	return ev, nil
}

func (s *LedgerStore) DeactivateDataRecord(ctx context.Context, dataID string, ev types.Event) (types.Event, error) {
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		name, err := activeRecordName(ctx, tx, dataID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
UPDATE data_records SET active = 0 WHERE data_id = ?;
`, dataID); err != nil {
			return fmt.Errorf("DeactivateDataRecord update: %w", err)
		}
		ev.DataName = name
		return appendEvent(ctx, tx, &ev)
	})
	if err != nil {
		return types.Event{}, err
	}
	return ev, nil
}

func (s *LedgerStore) AppendAccessLog(ctx context.Context, log types.AccessLog, ev types.Event) (types.Event, error) {
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		id, err := nextCounter(ctx, tx, "log")
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO access_logs(log_id, principal, username, data_id, action, at_ms)
VALUES (?, ?, ?, ?, ?, ?);
`, id, log.Principal, log.Username, log.DataID, log.Action, log.At.UTC().UnixMilli()); err != nil {
			return fmt.Errorf("AppendAccessLog insert: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO data_log_index(data_id, log_id) VALUES (?, ?);
`, log.DataID, id); err != nil {
			return fmt.Errorf("AppendAccessLog index: %w", err)
		}

		ev.LogID = id
		return appendEvent(ctx, tx, &ev)
	})
	if err != nil {
		return types.Event{}, err
	}
	return ev, nil
}

func activeRecordName(ctx context.Context, tx *sql.Tx, dataID string) (string, error) {
	var (
		name   string
		active int
	)
	err := tx.QueryRowContext(ctx, `
SELECT data_name, active FROM data_records WHERE data_id = ?;
`, dataID).Scan(&name, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("select data record: %w", err)
	}
	if active == 0 {
		return "", store.ErrInactive
	}
	return name, nil
}

// nextCounter bumps the named allocator and returns the new value.  The first
// id handed out is 1.
func nextCounter(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	var v int64
	err := tx.QueryRowContext(ctx, `
UPDATE ledger_counters SET value = value + 1 WHERE name = ? RETURNING value;
`, name).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("next %s id: %w", name, err)
	}
	return v, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
