package types

import "time"

// AccessRequest is a principal's request to access a data item.  Approved,
// ProcessedBy and ProcessedAt are meaningful only once Processed is true.
type AccessRequest struct {
	ID          int64      `json:"request_id"`
	Requester   string     `json:"requester"`
	Username    string     `json:"username"`
	DataID      string     `json:"data_id"`
	DataName    string     `json:"data_name"`
	CreatedAt   time.Time  `json:"created_at"`
	Approved    bool       `json:"approved"`
	Processed   bool       `json:"processed"`
	ProcessedBy string     `json:"processed_by,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// DataRecord is a registered data item.  Records are never removed; a
// delete clears Active.
type DataRecord struct {
	DataID     string    `json:"data_id"`
	DataName   string    `json:"data_name"`
	UploadedBy string    `json:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at"`
	StorageRef string    `json:"storage_ref,omitempty"`
	Active     bool      `json:"active"`
}

// AccessLog is one immutable access event against a data item.
type AccessLog struct {
	ID        int64     `json:"log_id"`
	Principal string    `json:"principal"`
	Username  string    `json:"username"`
	DataID    string    `json:"data_id"`
	Action    string    `json:"action"`
	At        time.Time `json:"at"`
}

// Receipt is returned for every successful mutation.  Seq and EventHash
// identify the chained event the mutation produced.
type Receipt struct {
	Seq       int64  `json:"seq"`
	EventHash string `json:"event_hash"`
	RequestID int64  `json:"request_id,omitempty"`
	LogID     int64  `json:"log_id,omitempty"`
}
