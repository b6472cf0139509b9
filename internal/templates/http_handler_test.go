package templates

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rpattn/ledgerflow/internal/domain"
	"github.com/rpattn/ledgerflow/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveTemplates(t *testing.T, mux *http.ServeMux, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandler_TemplateLifecycle(t *testing.T) {
	mux := http.NewServeMux()
	NewHTTPHandler(NewRegistry(memory.NewTemplateRepository())).Register(mux)

	body, err := json.Marshal(bankInput())
	require.NoError(t, err)
	rec := serveTemplates(t, mux, http.MethodPost, "/templates", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created domain.Template
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Bank", created.Name)
	assert.Equal(t, 1, created.Version)

	rec = serveTemplates(t, mux, http.MethodPost, "/templates", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "duplicate active name")

	rec = serveTemplates(t, mux, http.MethodGet, "/templates/"+created.ID.String()+"/sample", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Bank_template.csv")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\ufeffDate,Amount,Account"))

	rec = serveTemplates(t, mux, http.MethodDelete, "/templates/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serveTemplates(t, mux, http.MethodGet, "/templates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), created.ID.String())

	rec = serveTemplates(t, mux, http.MethodGet, "/templates?include_inactive=true", nil)
	assert.Contains(t, rec.Body.String(), created.ID.String())
}

func TestHandler_InvalidTemplate(t *testing.T) {
	mux := http.NewServeMux()
	NewHTTPHandler(NewRegistry(memory.NewTemplateRepository())).Register(mux)

	rec := serveTemplates(t, mux, http.MethodPost, "/templates", []byte(`{"name":"Empty","file_format":"csv","mappings":[]}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serveTemplates(t, mux, http.MethodGet, "/templates/00000000-0000-0000-0000-000000000001", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
