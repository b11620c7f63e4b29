package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/datavault/server/internal/vault/store"
	"github.com/BrandonDHaskell/datavault/server/internal/vault/types"
)

func (s *LedgerStore) Request(ctx context.Context, id int64) (types.AccessRequest, error) {
	var (
		req         types.AccessRequest
		createdMs   int64
		approved    int
		processed   int
		processedBy sql.NullString
		processedMs sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT request_id, requester, username, data_id, data_name, created_at_ms,
       approved, processed, processed_by, processed_at_ms
FROM access_requests
WHERE request_id = ?;
`, id).Scan(
		&req.ID, &req.Requester, &req.Username, &req.DataID, &req.DataName, &createdMs,
		&approved, &processed, &processedBy, &processedMs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return types.AccessRequest{}, store.ErrNotFound
	}
	if err != nil {
		return types.AccessRequest{}, fmt.Errorf("Request query: %w", err)
	}

	req.CreatedAt = time.UnixMilli(createdMs).UTC()
	req.Approved = approved == 1
	req.Processed = processed == 1
	req.ProcessedBy = processedBy.String
	if processedMs.Valid {
		t := time.UnixMilli(processedMs.Int64).UTC()
		req.ProcessedAt = &t
	}
	return req, nil
}

func (s *LedgerStore) UserRequestIDs(ctx context.Context, principal string) ([]int64, error) {
	return s.ids(ctx, `
SELECT request_id FROM user_request_index WHERE principal = ? ORDER BY request_id;
`, principal)
}

func (s *LedgerStore) PendingCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM access_requests WHERE processed = 0;
`).Scan(&n); err != nil {
		return 0, fmt.Errorf("PendingCount query: %w", err)
	}
	return n, nil
}

func (s *LedgerStore) DataRecord(ctx context.Context, dataID string) (types.DataRecord, error) {
	var (
		rec        types.DataRecord
		uploadedMs int64
		active     int
	)
	err := s.db.QueryRowContext(ctx, `
SELECT data_id, data_name, uploaded_by, uploaded_at_ms, storage_ref, active
FROM data_records
WHERE data_id = ?;
`, dataID).Scan(&rec.DataID, &rec.DataName, &rec.UploadedBy, &uploadedMs, &rec.StorageRef, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return types.DataRecord{}, store.ErrNotFound
	}
	if err != nil {
		return types.DataRecord{}, fmt.Errorf("DataRecord query: %w", err)
	}
	rec.UploadedAt = time.UnixMilli(uploadedMs).UTC()
	rec.Active = active == 1
	return rec, nil
}

func (s *LedgerStore) AccessLog(ctx context.Context, id int64) (types.AccessLog, error) {
	var (
		log  types.AccessLog
		atMs int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT log_id, principal, username, data_id, action, at_ms
FROM access_logs
WHERE log_id = ?;
`, id).Scan(&log.ID, &log.Principal, &log.Username, &log.DataID, &log.Action, &atMs)
	if errors.Is(err, sql.ErrNoRows) {
		return types.AccessLog{}, store.ErrNotFound
	}
	if err != nil {
		return types.AccessLog{}, fmt.Errorf("AccessLog query: %w", err)
	}
	log.At = time.UnixMilli(atMs).UTC()
	return log, nil
}

func (s *LedgerStore) DataLogIDs(ctx context.Context, dataID string) ([]int64, error) {
	return s.ids(ctx, `
SELECT log_id FROM data_log_index WHERE data_id = ? ORDER BY log_id;
`, dataID)
}

func (s *LedgerStore) ids(ctx context.Context, query string, arg any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("ids query: %w", err)
	}
	defer rows.Close()

	out := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ids scan: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ids rows: %w", err)
	}
	return out, nil
}
