package service

import (
	"errors"

	"github.com/BrandonDHaskell/datavault/server/internal/vault/store"
)

var (
	ErrUnauthorized             = errors.New("caller is not the ledger authority")
	ErrInvalidRequestID         = errors.New("request id out of range")
	ErrAlreadyProcessed         = errors.New("request already processed")
	ErrRecordNotFoundOrInactive = errors.New("data record not found or inactive")

	ErrInvalidArgument   = errors.New("invalid argument")
	ErrRequestNotFound   = errors.New("request not found")
	ErrAccessLogNotFound = errors.New("access log not found")
	ErrAuthorityMismatch = errors.New("configured authority does not match ledger authority")
)

// mapRequestErr translates store errors for ProcessAccessRequest.
func mapRequestErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrInvalidRequestID
	case errors.Is(err, store.ErrAlreadyProcessed):
		return ErrAlreadyProcessed
	}
	return err
}

// mapRecordErr translates store errors for ModifyDataRecord and
// DeleteDataRecord.
func mapRecordErr(err error) error {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInactive) {
		return ErrRecordNotFoundOrInactive
	}
	return err
}

// outcome is the metrics label for err.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrInvalidRequestID):
		return "invalid_request_id"
	case errors.Is(err, ErrAlreadyProcessed):
		return "already_processed"
	case errors.Is(err, ErrRecordNotFoundOrInactive):
		return "record_not_found_or_inactive"
	default:
		return "error"
	}
}
