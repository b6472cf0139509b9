package posting

import (
	"net/http"

	"github.com/rpattn/ledgerflow/internal/middleware"

	"github.com/google/uuid"
)

// Handler exposes the posting engine over HTTP.
type Handler struct {
	service *Service
}

// NewHTTPHandler wraps service.
func NewHTTPHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register mounts the posting routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /transactions/post", h.post)
	mux.HandleFunc("POST /transactions/{id}/unpost", h.unpost)
	mux.HandleFunc("POST /statements/{id}/reverse", h.reverse)
	mux.HandleFunc("GET /statements/{id}/summary", h.summary)
}

type postRequest struct {
	TransactionIDs []uuid.UUID `json:"transaction_ids"`
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	t, ok := middleware.RequireTenant(w, r)
	if !ok {
		return
	}
	var body postRequest
	if err := middleware.DecodeJSON(r, 0, &body); err != nil {
		middleware.BadRequest(w, "%v", err)
		return
	}
	if len(body.TransactionIDs) == 0 {
		middleware.BadRequest(w, "transaction_ids are required")
		return
	}

	results, err := h.service.PostBatch(r.Context(), t, body.TransactionIDs)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *Handler) unpost(w http.ResponseWriter, r *http.Request) {
	t, ok := middleware.RequireTenant(w, r)
	if !ok {
		return
	}
	id, ok := middleware.PathID(w, r)
	if !ok {
		return
	}

	receipt, err := h.service.Unpost(r.Context(), t, id)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, receipt)
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	t, ok := middleware.RequireTenant(w, r)
	if !ok {
		return
	}
	id, ok := middleware.PathID(w, r)
	if !ok {
		return
	}

	reversal, err := h.service.ReverseStatement(r.Context(), t, id)
	if err != nil {
		status, kind := middleware.StatusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusConflict
		}
		middleware.WriteJSON(w, status, map[string]any{
			"error":    err.Error(),
			"kind":     kind,
			"reversal": reversal,
		})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, reversal)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	t, ok := middleware.RequireTenant(w, r)
	if !ok {
		return
	}
	id, ok := middleware.PathID(w, r)
	if !ok {
		return
	}

	summaries, err := h.service.StatementSummary(r.Context(), t, id)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"statement_id": id, "accounts": summaries})
}
