package templates

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rpattn/ledgerflow/internal/middleware"
)

// Handler exposes the template registry over HTTP. Templates are shared, so no tenant is required.
type Handler struct {
	registry *Registry
}

// NewHTTPHandler wraps registry.
func NewHTTPHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

// Register mounts the template routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /templates", h.list)
	mux.HandleFunc("POST /templates", h.create)
	mux.HandleFunc("GET /templates/{id}", h.get)
	mux.HandleFunc("PUT /templates/{id}", h.update)
	mux.HandleFunc("DELETE /templates/{id}", h.deactivate)
	mux.HandleFunc("GET /templates/{id}/sample", h.sample)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	tpls, err := h.registry.List(r.Context(), includeInactive)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"templates": tpls})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in TemplateInput
	if err := middleware.DecodeJSON(r, 0, &in); err != nil {
		middleware.BadRequest(w, "%v", err)
		return
	}
	tpl, err := h.registry.Register(r.Context(), in)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, tpl)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.PathID(w, r)
	if !ok {
		return
	}
	tpl, err := h.registry.Get(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, tpl)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.PathID(w, r)
	if !ok {
		return
	}
	var in TemplateInput
	if err := middleware.DecodeJSON(r, 0, &in); err != nil {
		middleware.BadRequest(w, "%v", err)
		return
	}
	tpl, err := h.registry.Update(r.Context(), id, in)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, tpl)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.PathID(w, r)
	if !ok {
		return
	}
	if err := h.registry.Deactivate(r.Context(), id); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// sample streams a CSV that imports cleanly with the template.
func (h *Handler) sample(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.PathID(w, r)
	if !ok {
		return
	}
	tpl, err := h.registry.Get(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	name, data, err := Sample(tpl, time.Now())
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
