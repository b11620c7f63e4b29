package types

import "time"

type EventKind string

const (
	EventRequestCreated   EventKind = "RequestCreated"
	EventRequestProcessed EventKind = "RequestProcessed"
	EventDataUploaded     EventKind = "DataUploaded"
	EventDataModified     EventKind = "DataModified"
	EventDataDeleted      EventKind = "DataDeleted"
	EventDataAccessed     EventKind = "DataAccessed"
)

// Event is the notification emitted for a successful mutation and, at the
// same time, one link of the ledger's hash chain.
//
// Principal is the acting identity for the kind: the requesting user for
// RequestCreated and DataAccessed, the uploader for DataUploaded, and the
// authority for the remaining kinds.
type Event struct {
	Seq        int64     `json:"seq"`
	ID         string    `json:"id"`
	Kind       EventKind `json:"kind"`
	RequestID  int64     `json:"request_id,omitempty"`
	LogID      int64     `json:"log_id,omitempty"`
	DataID     string    `json:"data_id,omitempty"`
	DataName   string    `json:"data_name,omitempty"`
	Principal  string    `json:"principal"`
	Username   string    `json:"username,omitempty"`
	Action     string    `json:"action,omitempty"`
	StorageRef string    `json:"storage_ref,omitempty"`
	Approved   bool      `json:"approved"`
	At         time.Time `json:"at"`
	PrevHash   string    `json:"prev_hash"`
	Hash       string    `json:"hash"`
}

// ChainReport is the outcome of recomputing the event hash chain.
type ChainReport struct {
	Verified bool   `json:"verified"`
	Count    int64  `json:"count"`
	HeadHash string `json:"head_hash"`
	BrokenAt int64  `json:"broken_at,omitempty"`
	Reason   string `json:"reason,omitempty"`
}
