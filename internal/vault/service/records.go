package service

import (
	"context"
	"strings"
	"time"

	"github.com/BrandonDHaskell/datavault/server/internal/vault/types"
)

// RecordDataUpload registers dataID.  An existing record under the same id,
// active or not, is replaced and becomes active again.
func (l *Ledger) RecordDataUpload(ctx context.Context, caller, dataID, dataName, uploadedBy, storageRef string) (types.Receipt, error) {
	dataID = strings.TrimSpace(dataID)
	uploadedBy = strings.TrimSpace(uploadedBy)

	return l.mutate(ctx, mutation{
		op:         "record_data_upload",
		caller:     caller,
		privileged: true,
		validate: func() error {
			if err := required("data_id", dataID); err != nil {
				return err
			}
			return required("uploaded_by", uploadedBy)
		},
		apply: func(ctx context.Context, at time.Time) (types.Event, error) {
			ev := newEvent(types.EventDataUploaded, uploadedBy, at)
			ev.DataID = dataID
			ev.DataName = dataName
			ev.StorageRef = storageRef

			return l.store.PutDataRecord(ctx, types.DataRecord{
				DataID:     dataID,
				DataName:   dataName,
				UploadedBy: uploadedBy,
				UploadedAt: at,
				StorageRef: storageRef,
				Active:     true,
			}, ev)
		},
	})
}

// ModifyDataRecord renames an active record.
func (l *Ledger) ModifyDataRecord(ctx context.Context, caller, dataID, newName string) (types.Receipt, error) {
	dataID = strings.TrimSpace(dataID)

	return l.mutate(ctx, mutation{
		op:         "modify_data_record",
		caller:     caller,
		privileged: true,
		validate:   func() error { return required("data_id", dataID) },
		apply: func(ctx context.Context, at time.Time) (types.Event, error) {
			ev := newEvent(types.EventDataModified, l.guard.Authority(), at)
			ev.DataID = dataID
			ev.DataName = newName

			committed, err := l.store.RenameDataRecord(ctx, dataID, newName, ev)
			if err != nil {
				return types.Event{}, mapRecordErr(err)
			}
			return committed, nil
		},
	})
}

// DeleteDataRecord soft-deletes an active record.  Deleting an inactive
// record fails.
func (l *Ledger) DeleteDataRecord(ctx context.Context, caller, dataID string) (types.Receipt, error) {
	dataID = strings.TrimSpace(dataID)

	return l.mutate(ctx, mutation{
		op:         "delete_data_record",
		caller:     caller,
		privileged: true,
		validate:   func() error { return required("data_id", dataID) },
		apply: func(ctx context.Context, at time.Time) (types.Event, error) {
			ev := newEvent(types.EventDataDeleted, l.guard.Authority(), at)
			ev.DataID = dataID

			committed, err := l.store.DeactivateDataRecord(ctx, dataID, ev)
			if err != nil {
				return types.Event{}, mapRecordErr(err)
			}
			return committed, nil
		},
	})
}
