package service

import (
	"context"
	"strings"
	"time"

	"github.com/BrandonDHaskell/datavault/server/internal/vault/types"
)

// CreateAccessRequest records user's request for dataID.  Any principal may
// call it and the data item need not exist.
func (l *Ledger) CreateAccessRequest(ctx context.Context, user, username, dataID, dataName string) (types.Receipt, error) {
	user = strings.TrimSpace(user)
	dataID = strings.TrimSpace(dataID)

	return l.mutate(ctx, mutation{
		op: "create_access_request",
		validate: func() error {
			if err := required("user", user); err != nil {
				return err
			}
			return required("data_id", dataID)
		},
		apply: func(ctx context.Context, at time.Time) (types.Event, error) {
			ev := newEvent(types.EventRequestCreated, user, at)
			ev.Username = username
			ev.DataID = dataID
			ev.DataName = dataName

			committed, err := l.store.CreateRequest(ctx, types.AccessRequest{
				Requester: user,
				Username:  username,
				DataID:    dataID,
				DataName:  dataName,
				CreatedAt: at,
			}, ev)
			if err != nil {
				return types.Event{}, err
			}
			l.metrics.addPending(1)
			return committed, nil
		},
	})
}

// ProcessAccessRequest resolves a pending request.  It succeeds at most once
// per request id.
func (l *Ledger) ProcessAccessRequest(ctx context.Context, caller string, requestID int64, approve bool) (types.Receipt, error) {
	return l.mutate(ctx, mutation{
		op:         "process_access_request",
		caller:     caller,
		privileged: true,
		validate: func() error {
			if requestID < 1 {
				return ErrInvalidRequestID
			}
			return nil
		},
		apply: func(ctx context.Context, at time.Time) (types.Event, error) {
			authority := l.guard.Authority()
			ev := newEvent(types.EventRequestProcessed, authority, at)
			ev.Approved = approve

			committed, err := l.store.ProcessRequest(ctx, requestID, approve, authority, at, ev)
			if err != nil {
				return types.Event{}, mapRequestErr(err)
			}
			l.metrics.addPending(-1)
			return committed, nil
		},
	})
}
