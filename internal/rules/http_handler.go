package rules

import (
	"net/http"

	"github.com/rpattn/ledgerflow/internal/middleware"
)

// Handler exposes mapping rules over HTTP.
type Handler struct {
	service *Service
}

// NewHTTPHandler wraps service.
func NewHTTPHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register mounts the rule routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /mapping-rules", h.list)
	mux.HandleFunc("POST /mapping-rules", h.create)
	mux.HandleFunc("GET /mapping-rules/{id}", h.get)
	mux.HandleFunc("DELETE /mapping-rules/{id}", h.deactivate)
	mux.HandleFunc("POST /transactions/{id}/apply-mapping", h.apply)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	t, ok := middleware.RequireTenant(w, r)
	if !ok {
		return
	}
	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	rules, err := h.service.List(r.Context(), t, includeInactive)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	t, ok := middleware.RequireTenant(w, r)
	if !ok {
		return
	}
	var body RuleInput
	if err := middleware.DecodeJSON(r, 0, &body); err != nil {
		middleware.BadRequest(w, "%v", err)
		return
	}

	rule, err := h.service.Create(r.Context(), t, body)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, rule)
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

	rule, err := h.service.Get(r.Context(), t, id)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, rule)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	t, ok := middleware.RequireTenant(w, r)
	if !ok {
		return
	}
	id, ok := middleware.PathID(w, r)
	if !ok {
		return
	}

	if err := h.service.Deactivate(r.Context(), t, id); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request) {
	t, ok := middleware.RequireTenant(w, r)
	if !ok {
		return
	}
	id, ok := middleware.PathID(w, r)
	if !ok {
		return
	}

	application, err := h.service.Apply(r.Context(), t, id)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, application)
}
