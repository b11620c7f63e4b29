package service

import (
	"context"
	"strings"
	"time"

	"github.com/BrandonDHaskell/datavault/server/internal/vault/types"
)

const defaultAction = "view"

// LogDataAccess appends an access log entry.  It does not check that user
// holds an approved request for dataID.
func (l *Ledger) LogDataAccess(ctx context.Context, user, username, dataID, action string) (types.Receipt, error) {
	user = strings.TrimSpace(user)
	dataID = strings.TrimSpace(dataID)
	if action = strings.TrimSpace(action); action == "" {
		action = defaultAction
	}

	return l.mutate(ctx, mutation{
		op: "log_data_access",
		validate: func() error {
			if err := required("user", user); err != nil {
				return err
			}
			return required("data_id", dataID)
		},
		apply: func(ctx context.Context, at time.Time) (types.Event, error) {
			ev := newEvent(types.EventDataAccessed, user, at)
			ev.Username = username
			ev.DataID = dataID
			ev.Action = action

			return l.store.AppendAccessLog(ctx, types.AccessLog{
				Principal: user,
				Username:  username,
				DataID:    dataID,
				Action:    action,
				At:        at,
			}, ev)
		},
	})
}
