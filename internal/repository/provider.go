package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rpattn/ledgerflow/internal/db"
	"github.com/rpattn/ledgerflow/internal/tenant"
)

// PostgresProvider opens one pool per tenant database and hands out stores bound to it.
type PostgresProvider struct {
	base        db.Config
	autoMigrate bool

	mu    sync.Mutex
	conns map[string]*db.Connection
}

// NewPostgresProvider creates a provider for tenant databases derived from base.
// With autoMigrate the schema is brought up to date the first time a tenant is opened.
func NewPostgresProvider(base db.Config, autoMigrate bool) *PostgresProvider {
	return &PostgresProvider{
		base:        base,
		autoMigrate: autoMigrate,
		conns:       make(map[string]*db.Connection),
	}
}

// Store returns the repositories bound to the tenant's database.
func (p *PostgresProvider) Store(ctx context.Context, t tenant.Tenant) (Store, error) {
	if t.ID == "" {
		return Store{}, fmt.Errorf("tenant is required")
	}

	conn, err := p.connection(ctx, t)
	if err != nil {
		return Store{}, err
	}

	return Store{
		ImportLogs:   NewImportLogRepository(conn.Pool),
		Transactions: NewTransactionRepository(conn.Pool),
		Ledger:       NewLedgerRepository(conn.Pool),
		Accounts:     NewAccountRepository(conn.Pool),
		Audit:        NewAuditRepository(conn.Pool),
		Rules:        NewMappingRuleRepository(conn.Pool),
	}, nil
}

func (p *PostgresProvider) connection(ctx context.Context, t tenant.Tenant) (*db.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.conns[t.ID]; ok {
		return conn, nil
	}

	cfg := p.base.ForTenant(t.ID)
	if p.autoMigrate {
		if _, err := db.Migrate(cfg); err != nil {
			return nil, fmt.Errorf("failed to migrate tenant %s: %w", t.ID, err)
		}
	}

	conn, err := db.NewConnection(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect tenant %s: %w", t.ID, err)
	}
	p.conns[t.ID] = conn
	return conn, nil
}

// Tenants lists the tenants with an open pool, in id order.
func (p *PostgresProvider) Tenants() []tenant.Tenant {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]tenant.Tenant, 0, len(p.conns))
	for id := range p.conns {
		out = append(out, tenant.Tenant{ID: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close releases every tenant pool.
func (p *PostgresProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, conn := range p.conns {
		conn.Close()
		delete(p.conns, id)
	}
}
