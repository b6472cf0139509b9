package rules

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rpattn/ledgerflow/internal/domain"
	"github.com/rpattn/ledgerflow/internal/middleware"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_CreateListAndApply(t *testing.T) {
	f := newRulesFixture(t)
	mux := http.NewServeMux()
	NewHTTPHandler(f.service).Register(mux)
	server := middleware.TenantMiddleware(mux)

	send := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(middleware.TenantHeader, acme.ID)
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		return rec
	}

	rec := send(http.MethodPost, "/mapping-rules", `{
		"name": "cloud spend",
		"priority": 5,
		"conditions": {"description_contains": ["aws"]},
		"result": {"account_code": "6100", "category": "Software"}
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created domain.MappingRule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.True(t, created.Active)

	rec = send(http.MethodPost, "/mapping-rules", `{"name": "empty", "result": {"category": "x"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = send(http.MethodGet, "/mapping-rules", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), created.ID.String())

	rec = send(http.MethodPost, "/transactions/"+f.cloud.ID.String()+"/apply-mapping", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var applied Application
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &applied))
	assert.True(t, applied.Matched)
	assert.Equal(t, "6100", applied.Transaction.AccountCode)
	assert.Equal(t, "Software", applied.Transaction.Category)

	rec = send(http.MethodGet, "/mapping-rules/"+created.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"usage_count":1`)

	rec = send(http.MethodDelete, "/mapping-rules/"+created.ID.String(), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = send(http.MethodGet, "/mapping-rules/not-a-uuid", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
