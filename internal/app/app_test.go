package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rpattn/ledgerflow/internal/config"
	"github.com/rpattn/ledgerflow/internal/domain"
	"github.com/rpattn/ledgerflow/internal/ingestion"
	"github.com/rpattn/ledgerflow/internal/logger"
	"github.com/rpattn/ledgerflow/internal/middleware"
	"github.com/rpattn/ledgerflow/internal/repository/memory"
	"github.com/rpattn/ledgerflow/internal/tenant"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipeline struct {
	t        *testing.T
	handler  http.Handler
	provider *memory.Provider
	services *Services
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	provider := memory.NewProvider()
	cfg := config.Default()
	services := NewServices(provider, memory.NewTemplateRepository(), cfg.Import, nil)
	n, err := services.SeedTemplates(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, 6, n)

	return &pipeline{
		t:        t,
		handler:  services.Handler(logger.NewWithWriter(&bytes.Buffer{}), cfg.Server, cfg.Import.MaxUploadBytes),
		provider: provider,
		services: services,
	}
}

func (p *pipeline) do(method, path string, body any) *httptest.ResponseRecorder {
	p.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(p.t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.TenantHeader, "acme")
	rec := httptest.NewRecorder()
	p.handler.ServeHTTP(rec, req)
	return rec
}

func TestPipeline_ImportApprovePost(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	acme := tenant.Tenant{ID: "acme"}

	tpl, err := p.services.Templates.GetByName(ctx, "Generic Transactions")
	require.NoError(t, err)
	statement := domain.Statement{
		ID:          uuid.New(),
		PeriodStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	}
	item := domain.LineItem{ID: uuid.New(), LineCode: "4100", LineName: "Revenue", Amount: decimal.Zero}
	p.provider.Tenant(acme).AddStatement(statement, item)
	p.provider.Tenant(acme).AddAccounts("4100")

	rec := p.do(http.MethodPost, "/imports", map[string]any{
		"template_id": tpl.ID,
		"file_name":   "jan.json",
		"rows": []map[string]string{
			{"Date": "2024-01-05", "Amount": "1250.00", "Account": "4100"},
			{"Date": "2024-01-09", "Amount": "", "Account": "4100"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var imported ingestion.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &imported))
	assert.Equal(t, domain.ImportStatusCompleted, imported.Status)
	assert.Equal(t, 2, imported.TotalRows)
	assert.Equal(t, 1, imported.ValidRows)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	rec = p.do(http.MethodGet, "/transactions?status=pending&import_log_id="+imported.ImportLogID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Transactions []domain.Transaction `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Transactions, 2)

	ids := []uuid.UUID{listed.Transactions[0].ID, listed.Transactions[1].ID}
	rec = p.do(http.MethodPost, "/transactions/approve", map[string]any{"transaction_ids": ids, "auto_post": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var approved struct {
		Results  []domain.ItemResult `json:"results"`
		Postings []domain.ItemResult `json:"postings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &approved))
	outcomes := []string{approved.Results[0].Outcome, approved.Results[1].Outcome}
	assert.ElementsMatch(t, []string{domain.OutcomeSuccess, domain.OutcomeFailure}, outcomes)
	require.Len(t, approved.Postings, 1)
	assert.True(t, approved.Postings[0].Succeeded())

	posted, ok := p.provider.Tenant(acme).LineItemByCode(statement.ID, "4100")
	require.True(t, ok)
	assert.True(t, posted.Amount.Equal(decimal.RequireFromString("1250")))

	rec = p.do(http.MethodGet, "/imports/"+imported.ImportLogID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var log domain.ImportLog
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &log))
	assert.Equal(t, 1, log.ImportedRows)
}

func TestPipeline_HealthAndCORS(t *testing.T) {
	p := newPipeline(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	p.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = p.do(http.MethodGet, "/templates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "Generic Transactions"))
}

func TestPipeline_MappingRulesMounted(t *testing.T) {
	p := newPipeline(t)

	rec := p.do(http.MethodPost, "/mapping-rules", map[string]any{
		"name":       "consulting",
		"conditions": map[string]any{"description_contains": []string{"consult"}},
		"result":     map[string]any{"category": "Services"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = p.do(http.MethodGet, "/mapping-rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "consulting")
}
