package ingestion

import (
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/rpattn/ledgerflow/internal/importlog"
	"github.com/rpattn/ledgerflow/internal/middleware"

	"github.com/google/uuid"
)

// Handler exposes imports over HTTP.
type Handler struct {
	service        *Service
	logs           *importlog.Manager
	maxUploadBytes int64
}

// NewHTTPHandler wraps the service and the import log manager.
func NewHTTPHandler(service *Service, logs *importlog.Manager, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 32 << 20
	}
	return &Handler{service: service, logs: logs, maxUploadBytes: maxUploadBytes}
}

// Register mounts the import routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /imports", h.upload)
	mux.HandleFunc("POST /imports/preview", h.preview)
	mux.HandleFunc("GET /imports", h.list)
	mux.HandleFunc("GET /imports/{id}", h.get)
	mux.HandleFunc("POST /imports/{id}/recover", h.recover)
}

type rowsRequest struct {
	TemplateID uuid.UUID           `json:"template_id"`
	FileName   string              `json:"file_name"`
	Rows       []map[string]string `json:"rows"`
}

type failedImport struct {
	middleware.ErrorResponse
	Result
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readRequest(w, r)
	if !ok {
		return
	}

	result, err := h.service.Import(r.Context(), req)
	if err != nil {
		if result.ImportLogID == uuid.Nil {
			middleware.WriteError(w, r, err)
			return
		}
		status, kind := middleware.StatusFor(err)
		if status == http.StatusInternalServerError {
			middleware.WriteError(w, r, err)
			return
		}
		middleware.WriteJSON(w, status, failedImport{
			ErrorResponse: middleware.ErrorResponse{Error: err.Error(), Kind: kind},
			Result:        result,
		})
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readRequest(w, r)
	if !ok {
		return
	}

	preview, err := h.service.Preview(r.Context(), req)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, preview)
}

// readRequest decodes a multipart upload or a JSON rows body. It writes the error response
// itself and reports false when the request is unusable.
func (h *Handler) readRequest(w http.ResponseWriter, r *http.Request) (Request, bool) {
	t, ok := middleware.RequireTenant(w, r)
	if !ok {
		return Request{}, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	req := Request{Tenant: t}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		// Only the form fields are buffered; the file part is streamed to the parser.
		reader, err := r.MultipartReader()
		if err != nil {
			middleware.BadRequest(w, "invalid form data: %v", err)
			return Request{}, false
		}
		for {
			part, err := reader.NextPart()
			if err != nil {
				middleware.BadRequest(w, "file is required")
				return Request{}, false
			}
			if part.FormName() == "template_id" {
				raw, err := io.ReadAll(io.LimitReader(part, 64))
				if err != nil {
					middleware.BadRequest(w, "invalid template_id")
					return Request{}, false
				}
				if req.TemplateID, err = uuid.Parse(strings.TrimSpace(string(raw))); err != nil {
					middleware.BadRequest(w, "invalid template_id: %v", err)
					return Request{}, false
				}
				continue
			}
			if part.FormName() == "file" {
				req.FileName = part.FileName()
				req.Data = part
				break
			}
		}
	case "application/json":
		var body rowsRequest
		if err := middleware.DecodeJSON(r, h.maxUploadBytes, &body); err != nil {
			middleware.BadRequest(w, "%v", err)
			return Request{}, false
		}
		if body.Rows == nil {
			middleware.BadRequest(w, "rows are required")
			return Request{}, false
		}
		req.TemplateID = body.TemplateID
		req.FileName = body.FileName
		req.Rows = body.Rows
	default:
		middleware.BadRequest(w, "expected multipart/form-data or application/json, got %q", mediaType)
		return Request{}, false
	}

	if req.TemplateID == uuid.Nil {
		middleware.BadRequest(w, "template_id must precede the file part and is required")
		return Request{}, false
	}
	return req, true
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	t, ok := middleware.RequireTenant(w, r)
	if !ok {
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			middleware.BadRequest(w, "invalid limit %q", raw)
			return
		}
		limit = parsed
	}

	logs, err := h.logs.List(r.Context(), t, limit)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"imports": logs})
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

	log, err := h.logs.Get(r.Context(), t, id)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, log)
}

func (h *Handler) recover(w http.ResponseWriter, r *http.Request) {
	t, ok := middleware.RequireTenant(w, r)
	if !ok {
		return
	}
	id, ok := middleware.PathID(w, r)
	if !ok {
		return
	}

	log, err := h.logs.Recover(r.Context(), t, id)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, log)
}
