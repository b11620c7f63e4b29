package types

// Request bodies accepted by the HTTP API.  Each may arrive as JSON or as a
// protobuf Struct with the same field names.

type CreateAccessRequestBody struct {
	User     string `json:"user,omitempty"` // defaults to the caller
	Username string `json:"username"`
	DataID   string `json:"data_id"`
	DataName string `json:"data_name"`
}

type ProcessAccessRequestBody struct {
	Approve *bool `json:"approve"`
}

type RecordDataUploadBody struct {
	DataName   string `json:"data_name"`
	UploadedBy string `json:"uploaded_by"`
	StorageRef string `json:"storage_ref,omitempty"`
}

type ModifyDataRecordBody struct {
	DataName string `json:"data_name"`
}

type LogDataAccessBody struct {
	User     string `json:"user,omitempty"` // defaults to the caller
	Username string `json:"username"`
	Action   string `json:"action,omitempty"`
}

type UserRequestsResponse struct {
	Principal  string  `json:"principal"`
	RequestIDs []int64 `json:"request_ids"`
}

type DataAccessLogsResponse struct {
	DataID string  `json:"data_id"`
	LogIDs []int64 `json:"log_ids"`
}

type PendingCountResponse struct {
	Pending int64 `json:"pending"`
}

type EventsResponse struct {
	Events []Event `json:"events"`
	Next   int64   `json:"next"`
}

type ErrorResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Message string `json:"message"`
}
