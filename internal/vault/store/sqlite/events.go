package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/datavault/server/internal/vault/chain"
	"github.com/BrandonDHaskell/datavault/server/internal/vault/types"
)

const eventColumns = `seq, event_id, kind, request_id, log_id, data_id, data_name,
  principal, username, action, storage_ref, approved, at_ms, prev_hash, hash`

// appendEvent seals ev onto the current chain head and inserts it inside tx.
func appendEvent(ctx context.Context, tx *sql.Tx, ev *types.Event) error {
	seq, err := nextCounter(ctx, tx, "event")
	if err != nil {
		return err
	}

	var prev string
	if err := tx.QueryRowContext(ctx, `
SELECT hash FROM ledger_head WHERE id = 1;
`).Scan(&prev); err != nil {
		return fmt.Errorf("appendEvent head: %w", err)
	}

	ev.Seq = seq
	if err := chain.Seal(ev, prev); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO ledger_events(`+eventColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
		ev.Seq, ev.ID, string(ev.Kind), ev.RequestID, ev.LogID, ev.DataID, ev.DataName,
		ev.Principal, ev.Username, ev.Action, ev.StorageRef, boolInt(ev.Approved),
		ev.At.UTC().UnixMilli(), ev.PrevHash, ev.Hash,
	); err != nil {
		return fmt.Errorf("appendEvent insert: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE ledger_head SET seq = ?, hash = ? WHERE id = 1;
`, ev.Seq, ev.Hash); err != nil {
		return fmt.Errorf("appendEvent advance head: %w", err)
	}
	return nil
}

func (s *LedgerStore) ChainHead(ctx context.Context) (int64, string, error) {
	var (
		seq  int64
		hash string
	)
	if err := s.db.QueryRowContext(ctx, `
SELECT seq, hash FROM ledger_head WHERE id = 1;
`).Scan(&seq, &hash); err != nil {
		return 0, "", fmt.Errorf("ChainHead query: %w", err)
	}
	return seq, hash, nil
}

func (s *LedgerStore) Events(ctx context.Context, afterSeq int64, limit int) ([]types.Event, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT `+eventColumns+`
FROM ledger_events
WHERE seq > ?
ORDER BY seq
LIMIT ?;
`, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("Events query: %w", err)
	}
	defer rows.Close()

	out := []types.Event{}
	for rows.Next() {
		var (
			ev       types.Event
			kind     string
			approved int
			atMs     int64
		)
		if err := rows.Scan(
			&ev.Seq, &ev.ID, &kind, &ev.RequestID, &ev.LogID, &ev.DataID, &ev.DataName,
			&ev.Principal, &ev.Username, &ev.Action, &ev.StorageRef, &approved,
			&atMs, &ev.PrevHash, &ev.Hash,
		); err != nil {
			return nil, fmt.Errorf("Events scan: %w", err)
		}
		ev.Kind = types.EventKind(kind)
		ev.Approved = approved == 1
		ev.At = time.UnixMilli(atMs).UTC()
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Events rows: %w", err)
	}
	return out, nil
}

func (s *LedgerStore) Cursor(ctx context.Context, name string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
SELECT seq FROM relay_cursors WHERE name = ?;
`, name).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("Cursor query: %w", err)
	}
	return seq, nil
}

func (s *LedgerStore) SetCursor(ctx context.Context, name string, seq int64) error {
	nowMs := time.Now().UTC().UnixMilli()
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO relay_cursors(name, seq, updated_at_ms) VALUES (?, ?, ?)
ON CONFLICT(name) DO UPDATE SET seq = excluded.seq, updated_at_ms = excluded.updated_at_ms;
`, name, seq, nowMs); err != nil {
			return fmt.Errorf("SetCursor upsert: %w", err)
		}
		return nil
	})
}
