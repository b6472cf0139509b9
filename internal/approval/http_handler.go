package approval

import (
	"net/http"
	"strconv"

	"github.com/rpattn/ledgerflow/internal/domain"
	"github.com/rpattn/ledgerflow/internal/middleware"

	"github.com/google/uuid"
)

// Handler exposes the approval workflow over HTTP.
type Handler struct {
	service *Service
}

// NewHTTPHandler wraps service.
func NewHTTPHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register mounts the transaction routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /transactions", h.list)
	mux.HandleFunc("GET /transactions/{id}", h.get)
	mux.HandleFunc("POST /transactions/approve", h.approve)
	mux.HandleFunc("POST /transactions/reject", h.reject)
	mux.HandleFunc("PATCH /transactions/{id}", h.amend)
	mux.HandleFunc("DELETE /transactions/{id}", h.delete)
}

type approveRequest struct {
	TransactionIDs []uuid.UUID `json:"transaction_ids"`
	AutoPost       bool        `json:"auto_post"`
}

type rejectRequest struct {
	TransactionIDs []uuid.UUID `json:"transaction_ids"`
	Reason         string      `json:"reason"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	t, ok := middleware.RequireTenant(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	filter := domain.TransactionFilter{Limit: 500}
	if raw := query.Get("import_log_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			middleware.BadRequest(w, "invalid import_log_id %q", raw)
			return
		}
		filter.ImportLogID = &id
	}
	if raw := query.Get("status"); raw != "" {
		status := domain.TransactionStatus(raw)
		switch status {
		case domain.TransactionStatusPending, domain.TransactionStatusApproved, domain.TransactionStatusRejected:
			filter.Status = &status
		default:
			middleware.BadRequest(w, "invalid status %q", raw)
			return
		}
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			middleware.BadRequest(w, "invalid limit %q", raw)
			return
		}
		filter.Limit = limit
	}

	txs, err := h.service.List(r.Context(), t, filter)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	t, ok := middleware.RequireTenant(w, r)
	if !ok {
		return
	}
	id, ok := middleware.PathID(w, r)
	if !ok {
		return
	}

	tx, err := h.service.Get(r.Context(), t, id)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, tx)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	t, ok := middleware.RequireTenant(w, r)
	if !ok {
		return
	}
	var body approveRequest
	if err := middleware.DecodeJSON(r, 0, &body); err != nil {
		middleware.BadRequest(w, "%v", err)
		return
	}
	if len(body.TransactionIDs) == 0 {
		middleware.BadRequest(w, "transaction_ids are required")
		return
	}

	result, err := h.service.Approve(r.Context(), t, body.TransactionIDs, body.AutoPost)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	t, ok := middleware.RequireTenant(w, r)
	if !ok {
		return
	}
	var body rejectRequest
	if err := middleware.DecodeJSON(r, 0, &body); err != nil {
		middleware.BadRequest(w, "%v", err)
		return
	}
	if len(body.TransactionIDs) == 0 {
		middleware.BadRequest(w, "transaction_ids are required")
		return
	}

	results, err := h.service.Reject(r.Context(), t, body.TransactionIDs, body.Reason)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *Handler) amend(w http.ResponseWriter, r *http.Request) {
	t, ok := middleware.RequireTenant(w, r)
	if !ok {
		return
	}
	id, ok := middleware.PathID(w, r)
	if !ok {
		return
	}
	var body domain.TransactionAmendment
	if err := middleware.DecodeJSON(r, 0, &body); err != nil {
		middleware.BadRequest(w, "%v", err)
		return
	}

	tx, err := h.service.Amend(r.Context(), t, id, body)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, tx)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	t, ok := middleware.RequireTenant(w, r)
	if !ok {
		return
	}
	id, ok := middleware.PathID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), t, id); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
