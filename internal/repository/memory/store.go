// Package memory holds in-memory implementations of the repository contracts.
// They keep the same conditional-write semantics as the postgres repositories and
// back the service tests and dry-run imports. Data is lost on restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rpattn/ledgerflow/internal/domain"
	"github.com/rpattn/ledgerflow/internal/repository"
	"github.com/rpattn/ledgerflow/internal/tenant"

	"github.com/google/uuid"
)

// TenantData is the isolated store of one tenant. A single mutex guards all tables
// so multi-table writes (posting) are atomic.
type TenantData struct {
	mu sync.Mutex

	logs         map[uuid.UUID]*domain.ImportLog
	transactions map[uuid.UUID]*domain.Transaction
	statements   map[uuid.UUID]domain.Statement
	lineItems    map[uuid.UUID]*domain.LineItem
	accounts     map[string]bool
	accountsErr  error
	audit        []domain.AuditEvent
	rules        map[uuid.UUID]*domain.MappingRule
}

func newTenantData() *TenantData {
	return &TenantData{
		logs:         make(map[uuid.UUID]*domain.ImportLog),
		transactions: make(map[uuid.UUID]*domain.Transaction),
		statements:   make(map[uuid.UUID]domain.Statement),
		lineItems:    make(map[uuid.UUID]*domain.LineItem),
		accounts:     make(map[string]bool),
		rules:        make(map[uuid.UUID]*domain.MappingRule),
	}
}

// AddStatement registers a statement and its line items as posting targets.
func (d *TenantData) AddStatement(statement domain.Statement, items ...domain.LineItem) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.statements[statement.ID] = statement
	for _, item := range items {
		item.StatementID = statement.ID
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		stored := item
		d.lineItems[item.ID] = &stored
	}
}

// DeleteStatement removes a statement and its line items, as the external delete does.
func (d *TenantData) DeleteStatement(id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.statements, id)
	for itemID, item := range d.lineItems {
		if item.StatementID == id {
			delete(d.lineItems, itemID)
		}
	}
}

// LineItemByCode returns the line item with the given code in the statement.
func (d *TenantData) LineItemByCode(statementID uuid.UUID, code string) (domain.LineItem, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, item := range d.lineItems {
		if item.StatementID == statementID && item.LineCode == code {
			return *item, true
		}
	}
	return domain.LineItem{}, false
}

// AddAccounts marks codes as present in the chart of accounts.
func (d *TenantData) AddAccounts(codes ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, code := range codes {
		d.accounts[code] = true
	}
}

// FailAccountLookups makes every chart-of-accounts lookup return err. nil restores lookups.
func (d *TenantData) FailAccountLookups(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accountsErr = err
}

// Provider hands out memory stores keyed by tenant id.
type Provider struct {
	mu      sync.Mutex
	tenants map[string]*TenantData
}

// NewProvider creates an empty provider.
func NewProvider() *Provider {
	return &Provider{tenants: make(map[string]*TenantData)}
}

// Tenant returns the data of t, creating it on first use.
func (p *Provider) Tenant(t tenant.Tenant) *TenantData {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, ok := p.tenants[t.ID]
	if !ok {
		data = newTenantData()
		p.tenants[t.ID] = data
	}
	return data
}

// Tenants lists every tenant that has been opened.
func (p *Provider) Tenants() []tenant.Tenant {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]tenant.Tenant, 0, len(p.tenants))
	for id := range p.tenants {
		out = append(out, tenant.Tenant{ID: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Store implements repository.StoreProvider.
func (p *Provider) Store(_ context.Context, t tenant.Tenant) (repository.Store, error) {
	if t.ID == "" {
		return repository.Store{}, fmt.Errorf("tenant is required")
	}
	return NewStore(p.Tenant(t)), nil
}

// NewStore binds every repository to data.
func NewStore(data *TenantData) repository.Store {
	return repository.Store{
		ImportLogs:   &ImportLogRepository{data: data},
		Transactions: &TransactionRepository{data: data},
		Ledger:       &LedgerRepository{data: data},
		Accounts:     &AccountRepository{data: data},
		Audit:        &AuditRepository{data: data},
		Rules:        &MappingRuleRepository{data: data},
	}
}

func cloneLog(l domain.ImportLog) domain.ImportLog {
	l.ErrorSummary = append([]string{}, l.ErrorSummary...)
	if l.CompletedAt != nil {
		t := *l.CompletedAt
		l.CompletedAt = &t
	}
	return l
}

func cloneTransaction(t domain.Transaction) domain.Transaction {
	t.ValidationErrors = append([]string{}, t.ValidationErrors...)
	t.ValidationWarnings = append([]string{}, t.ValidationWarnings...)
	if t.Raw != nil {
		raw := make(map[string]string, len(t.Raw))
		for k, v := range t.Raw {
			raw[k] = v
		}
		t.Raw = raw
	}
	if t.TransactionDate != nil {
		v := *t.TransactionDate
		t.TransactionDate = &v
	}
	if t.Amount != nil {
		v := *t.Amount
		t.Amount = &v
	}
	if t.PostedAt != nil {
		v := *t.PostedAt
		t.PostedAt = &v
	}
	if t.FirstPostedAt != nil {
		v := *t.FirstPostedAt
		t.FirstPostedAt = &v
	}
	if t.PostedStatementID != nil {
		v := *t.PostedStatementID
		t.PostedStatementID = &v
	}
	if t.PostedLineItemID != nil {
		v := *t.PostedLineItemID
		t.PostedLineItemID = &v
	}
	return t
}
