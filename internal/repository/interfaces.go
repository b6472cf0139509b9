package repository

import (
	"context"
	"time"

	"github.com/rpattn/ledgerflow/internal/domain"
	"github.com/rpattn/ledgerflow/internal/tenant"

	"github.com/google/uuid"
)

// TemplateRepository stores column-mapping templates. Templates are shared by all tenants.
type TemplateRepository interface {
	Create(ctx context.Context, tpl domain.Template) (domain.Template, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Template, error)
	GetActiveByName(ctx context.Context, name string) (domain.Template, error)
	List(ctx context.Context, includeInactive bool) ([]domain.Template, error)
	// ReplaceVersion deactivates previousID and stores next as its successor.
	ReplaceVersion(ctx context.Context, previousID uuid.UUID, next domain.Template) (domain.Template, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// ImportLogUpdate carries the fields written alongside a status transition.
type ImportLogUpdate struct {
	Counters      *domain.ImportCounters
	ErrorSummary  []string
	FailureReason string
	Completed     bool
	// RequireNothingStaged refuses the transition once any transaction is staged for the log.
	RequireNothingStaged bool
}

// ImportLogRepository persists import runs.
type ImportLogRepository interface {
	Create(ctx context.Context, log domain.ImportLog) (domain.ImportLog, error)
	Get(ctx context.Context, id uuid.UUID) (domain.ImportLog, error)
	List(ctx context.Context, limit int) ([]domain.ImportLog, error)
	ListByStatus(ctx context.Context, status domain.ImportStatus, startedBefore time.Time) ([]domain.ImportLog, error)
	// Transition moves the log from -> to only if it is still in from.
	Transition(ctx context.Context, id uuid.UUID, from, to domain.ImportStatus, update ImportLogUpdate) (domain.ImportLog, error)
}

// TransactionRepository is the staging store for imported transactions.
type TransactionRepository interface {
	// Stage persists every transaction of one import in a single logical operation.
	// It refuses with ErrInvalidStateTransition unless the log is processing.
	Stage(ctx context.Context, logID uuid.UUID, txs []domain.Transaction) (domain.StatusCounts, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Transaction, error)
	List(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)
	CountByLog(ctx context.Context, logID uuid.UUID) (domain.StatusCounts, error)
	CountByStatus(ctx context.Context, logID uuid.UUID) (map[domain.TransactionStatus]int, error)
	// UpdateStatus moves a transaction from -> to only if it is still in from.
	// Moving to approved additionally requires validation_status=valid.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.TransactionStatus, reason string) (domain.Transaction, error)
	// Amend rewrites the editable fields and validation result of a pending, unposted transaction.
	Amend(ctx context.Context, tx domain.Transaction) (domain.Transaction, error)
	// Delete removes a pending or rejected transaction that was never posted.
	Delete(ctx context.Context, id uuid.UUID) error
	ListByStatement(ctx context.Context, statementID uuid.UUID) ([]domain.Transaction, error)
}

// PostingReceipt is the outcome of an atomic posting write.
type PostingReceipt struct {
	Transaction  domain.Transaction
	LineItem     domain.LineItem
	FirstPosting bool
}

// LedgerRepository resolves statement line items and applies postings to them.
type LedgerRepository interface {
	ResolveTarget(ctx context.Context, accountCode string, date time.Time) (domain.PostingTarget, error)
	// ApplyPosting atomically sets posted_at on an approved, unposted transaction and adds its
	// amount to the target line item. The loser of a concurrent race gets ErrPostingConflict.
	ApplyPosting(ctx context.Context, txID uuid.UUID, target domain.PostingTarget, postedAt time.Time) (PostingReceipt, error)
	// ReversePosting atomically clears posted_at and subtracts the amount from the line item.
	ReversePosting(ctx context.Context, txID uuid.UUID) (PostingReceipt, error)
	GetLineItem(ctx context.Context, id uuid.UUID) (domain.LineItem, error)
	StatementSummary(ctx context.Context, statementID uuid.UUID) ([]domain.AccountPostingSummary, error)
}

// AccountRepository answers chart-of-accounts existence checks.
type AccountRepository interface {
	ExistingCodes(ctx context.Context, codes []string) (map[string]bool, error)
}

// AuditRepository stores transition events for the history recorder.
type AuditRepository interface {
	Record(ctx context.Context, event domain.AuditEvent) error
	List(ctx context.Context, entityType string, entityID uuid.UUID) ([]domain.AuditEvent, error)
}

// MappingRuleRepository stores a tenant's classification rules.
type MappingRuleRepository interface {
	// List returns rules by descending priority, newest first within a priority.
	List(ctx context.Context, includeInactive bool) ([]domain.MappingRule, error)
	Get(ctx context.Context, id uuid.UUID) (domain.MappingRule, error)
	Create(ctx context.Context, rule domain.MappingRule) (domain.MappingRule, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	// RecordUse increments usage_count and stamps last_used_at.
	RecordUse(ctx context.Context, id uuid.UUID, at time.Time) (domain.MappingRule, error)
}

// Store is the set of repositories bound to one tenant's isolated data store.
type Store struct {
	ImportLogs   ImportLogRepository
	Transactions TransactionRepository
	Ledger       LedgerRepository
	Accounts     AccountRepository
	Audit        AuditRepository
	Rules        MappingRuleRepository
}

// StoreProvider resolves a tenant to its isolated store.
type StoreProvider interface {
	Store(ctx context.Context, t tenant.Tenant) (Store, error)
}
