package middleware

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rpattn/ledgerflow/internal/domain"
	"github.com/rpattn/ledgerflow/internal/logger"

	"github.com/google/uuid"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// WriteJSON encodes payload with status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

var statusByKind = map[string]int{
	"not_found":                http.StatusNotFound,
	"posting_conflict":         http.StatusConflict,
	"invalid_state_transition": http.StatusConflict,
	"posting_target_not_found": http.StatusUnprocessableEntity,
	"parse_error":              http.StatusUnprocessableEntity,
	"mapping_error":            http.StatusUnprocessableEntity,
	"validation_error":         http.StatusBadRequest,
}

// StatusFor maps the error taxonomy onto HTTP status codes.
func StatusFor(err error) (int, string) {
	kind := domain.ErrorKind(err)
	if status, ok := statusByKind[kind]; ok {
		return status, kind
	}
	return http.StatusInternalServerError, ""
}

// WriteError maps err to a status and writes it. Unclassified errors are logged and hidden.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		l := logger.FromContext(r.Context())
		l.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		message = "internal server error"
	}
	WriteJSON(w, status, ErrorResponse{Error: message, Kind: kind})
}

// BadRequest writes a 400 with message.
func BadRequest(w http.ResponseWriter, format string, args ...any) {
	WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf(format, args...), Kind: "bad_request"})
}

// DecodeJSON reads a JSON body of at most limit bytes into dst, rejecting unknown fields.
func DecodeJSON(r *http.Request, limit int64, dst any) error {
	if limit <= 0 {
		limit = 1 << 20
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// PathID parses the {id} path segment. A malformed id is reported as not found.
func PathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteError(w, r, fmt.Errorf("%q: %w", r.PathValue("id"), domain.ErrNotFound))
		return uuid.Nil, false
	}
	return id, true
}
