package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/BrandonDHaskell/datavault/server/internal/vault/service"
	"github.com/BrandonDHaskell/datavault/server/internal/vault/types"
)

// ── Access requests ──────────────────────────────────────────────────────────

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var body types.CreateAccessRequestBody
	if !decodeBody(w, r, &body) {
		return
	}
	user := body.User
	if user == "" {
		user = Caller(r.Context())
	}

	receipt, err := s.ledger.CreateAccessRequest(r.Context(), user, body.Username, body.DataID, body.DataName)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, receipt)
}

func (s *Server) handleProcessRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body types.ProcessAccessRequestBody
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Approve == nil {
		writeError(w, r, http.StatusBadRequest, "invalid_argument", "approve is required")
		return
	}

	receipt, err := s.ledger.ProcessAccessRequest(r.Context(), Caller(r.Context()), id, *body.Approve)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, receipt)
}

func (s *Server) handleRequestDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	req, err := s.ledger.RequestDetails(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, req)
}

func (s *Server) handlePendingCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.ledger.PendingRequestsCount(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, types.PendingCountResponse{Pending: n})
}

func (s *Server) handleUserRequests(w http.ResponseWriter, r *http.Request) {
	principal := chi.URLParam(r, "principal")
	ids, err := s.ledger.UserRequests(r.Context(), principal)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, types.UserRequestsResponse{Principal: principal, RequestIDs: ids})
}

// ── Data records ─────────────────────────────────────────────────────────────

func (s *Server) handleRecordUpload(w http.ResponseWriter, r *http.Request) {
	var body types.RecordDataUploadBody
	if !decodeBody(w, r, &body) {
		return
	}
	receipt, err := s.ledger.RecordDataUpload(r.Context(), Caller(r.Context()),
		chi.URLParam(r, "dataID"), body.DataName, body.UploadedBy, body.StorageRef)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, receipt)
}

func (s *Server) handleModifyRecord(w http.ResponseWriter, r *http.Request) {
	var body types.ModifyDataRecordBody
	if !decodeBody(w, r, &body) {
		return
	}
	receipt, err := s.ledger.ModifyDataRecord(r.Context(), Caller(r.Context()),
		chi.URLParam(r, "dataID"), body.DataName)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, receipt)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.ledger.DeleteDataRecord(r.Context(), Caller(r.Context()), chi.URLParam(r, "dataID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, receipt)
}

func (s *Server) handleDataRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.ledger.DataRecord(r.Context(), chi.URLParam(r, "dataID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, rec)
}

// ── Access logs ──────────────────────────────────────────────────────────────

func (s *Server) handleLogAccess(w http.ResponseWriter, r *http.Request) {
	var body types.LogDataAccessBody
	if !decodeBody(w, r, &body) {
		return
	}
	user := body.User
	if user == "" {
		user = Caller(r.Context())
	}

	receipt, err := s.ledger.LogDataAccess(r.Context(), user, body.Username, chi.URLParam(r, "dataID"), body.Action)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, receipt)
}

func (s *Server) handleDataLogs(w http.ResponseWriter, r *http.Request) {
	dataID := chi.URLParam(r, "dataID")
	ids, err := s.ledger.DataAccessLogs(r.Context(), dataID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, types.DataAccessLogsResponse{DataID: dataID, LogIDs: ids})
}

func (s *Server) handleAccessLog(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	log, err := s.ledger.AccessLog(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, log)
}

// ── Event log ────────────────────────────────────────────────────────────────

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	after, err := queryInt(q.Get("after"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_argument", "after must be an integer")
		return
	}
	limit, err := queryInt(q.Get("limit"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_argument", "limit must be an integer")
		return
	}

	limit = min(max(limit, 0), service.MaxEventsLimit)

	evs, next, err := s.ledger.Events(r.Context(), after, int(limit))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, types.EventsResponse{Events: evs, Next: next})
}

func (s *Server) handleVerifyChain(w http.ResponseWriter, r *http.Request) {
	report, err := s.ledger.VerifyChain(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, report)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_argument", "id must be an integer")
		return 0, false
	}
	return id, true
}

func queryInt(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}
