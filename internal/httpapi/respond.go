package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/BrandonDHaskell/datavault/server/internal/vault/service"
	"github.com/BrandonDHaskell/datavault/server/internal/vault/types"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError encodes the error the same way respond would encode a result.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	respond(w, r, status, types.ErrorResponse{OK: false, Error: code, Message: msg})
}

// respond writes v as protobuf when the client asks for it, JSON otherwise.
func respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if wantsProtobuf(r) {
		writeProto(w, status, v)
		return
	}
	writeJSON(w, status, v)
}

func decodeStrict(r io.Reader, dst any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// decodeBody reads a JSON or protobuf body into dst.  It writes the 400
// itself and returns false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	var err error
	if isProtobuf(r) {
		err = readProto(r, dst)
	} else {
		err = decodeStrict(io.LimitReader(r.Body, maxRequestBody), dst)
	}
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_body", "invalid request body")
		return false
	}
	return true
}

// writeServiceError maps ledger errors onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		writeError(w, r, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, "unauthorized", err.Error())
	case errors.Is(err, service.ErrInvalidRequestID):
		writeError(w, r, http.StatusNotFound, "invalid_request_id", err.Error())
	case errors.Is(err, service.ErrRequestNotFound):
		writeError(w, r, http.StatusNotFound, "request_not_found", err.Error())
	case errors.Is(err, service.ErrRecordNotFoundOrInactive):
		writeError(w, r, http.StatusNotFound, "record_not_found_or_inactive", err.Error())
	case errors.Is(err, service.ErrAccessLogNotFound):
		writeError(w, r, http.StatusNotFound, "access_log_not_found", err.Error())
	case errors.Is(err, service.ErrAlreadyProcessed):
		writeError(w, r, http.StatusConflict, "already_processed", err.Error())
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, r, http.StatusInternalServerError, "internal_error", "unexpected server error")
	}
}
