package importlog

import (
	"context"
	"testing"
	"time"

	"github.com/rpattn/ledgerflow/internal/domain"
	"github.com/rpattn/ledgerflow/internal/repository/memory"
	"github.com/rpattn/ledgerflow/internal/tenant"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var acme = tenant.Tenant{ID: "acme"}

func stagedRow(logID uuid.UUID, row int, valid bool) domain.Transaction {
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	amount := decimal.NewFromInt(100)
	tx := domain.Transaction{
		ID:                 uuid.New(),
		ImportLogID:        logID,
		RowNumber:          row,
		TransactionDate:    &date,
		Amount:             &amount,
		AccountCode:        "4100",
		Status:             domain.TransactionStatusPending,
		ValidationStatus:   domain.ValidationStatusValid,
		ValidationErrors:   []string{},
		ValidationWarnings: []string{},
	}
	if !valid {
		tx.Amount = nil
		tx.ValidationStatus = domain.ValidationStatusInvalid
		tx.ValidationErrors = []string{"amount is required"}
	}
	return tx
}

func TestManager_HappyPath(t *testing.T) {
	ctx := context.Background()
	provider := memory.NewProvider()
	manager := NewManager(provider)

	log, err := manager.Open(ctx, acme, uuid.New(), "bank.csv")
	require.NoError(t, err)
	assert.Equal(t, domain.ImportStatusPending, log.Status)

	log, err = manager.Begin(ctx, acme, log.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ImportStatusProcessing, log.Status)

	_, err = manager.Complete(ctx, acme, log.ID, domain.ImportCounters{TotalRows: 3, ValidRows: 1, InvalidRows: 1}, nil)
	assert.Error(t, err, "unbalanced counters are refused")

	log, err = manager.Complete(ctx, acme, log.ID, domain.ImportCounters{TotalRows: 2, ValidRows: 1, InvalidRows: 1}, []string{"row 3: amount is required"})
	require.NoError(t, err)
	assert.Equal(t, domain.ImportStatusCompleted, log.Status)
	assert.NotNil(t, log.CompletedAt)
	assert.Equal(t, []string{"row 3: amount is required"}, log.ErrorSummary)

	_, err = manager.Fail(ctx, acme, log.ID, "too late")
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	store, err := provider.Store(ctx, acme)
	require.NoError(t, err)
	events, err := store.Audit.List(ctx, domain.AuditEntityImportLog, log.ID)
	require.NoError(t, err)
	actions := []domain.AuditAction{}
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []domain.AuditAction{domain.AuditActionCreate, domain.AuditActionValidate, domain.AuditActionComplete}, actions)
}

func TestManager_CompleteRequiresProcessing(t *testing.T) {
	ctx := context.Background()
	manager := NewManager(memory.NewProvider())

	log, err := manager.Open(ctx, acme, uuid.New(), "bank.csv")
	require.NoError(t, err)

	_, err = manager.Complete(ctx, acme, log.ID, domain.ImportCounters{}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestManager_SummaryIsCapped(t *testing.T) {
	ctx := context.Background()
	manager := NewManager(memory.NewProvider(), WithSummaryLimit(2))

	log, err := manager.Open(ctx, acme, uuid.New(), "bank.csv")
	require.NoError(t, err)
	_, err = manager.Begin(ctx, acme, log.ID)
	require.NoError(t, err)

	log, err = manager.Complete(ctx, acme, log.ID, domain.ImportCounters{TotalRows: 3, InvalidRows: 3}, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, log.ErrorSummary)
}

func TestManager_RefineAfterRejection(t *testing.T) {
	ctx := context.Background()
	provider := memory.NewProvider()
	manager := NewManager(provider)
	store, err := provider.Store(ctx, acme)
	require.NoError(t, err)

	log, err := manager.Open(ctx, acme, uuid.New(), "bank.csv")
	require.NoError(t, err)
	_, err = manager.Begin(ctx, acme, log.ID)
	require.NoError(t, err)

	row := stagedRow(log.ID, 2, true)
	_, err = store.Transactions.Stage(ctx, log.ID, []domain.Transaction{row})
	require.NoError(t, err)
	_, err = manager.Complete(ctx, acme, log.ID, domain.ImportCounters{TotalRows: 1, ValidRows: 1}, nil)
	require.NoError(t, err)

	unchanged, err := manager.Refine(ctx, acme, log.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ImportStatusCompleted, unchanged.Status)

	_, err = store.Transactions.UpdateStatus(ctx, row.ID, domain.TransactionStatusPending, domain.TransactionStatusRejected, "duplicate")
	require.NoError(t, err)

	refined, err := manager.Refine(ctx, acme, log.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ImportStatusPartiallyCompleted, refined.Status)

	again, err := manager.Refine(ctx, acme, log.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ImportStatusPartiallyCompleted, again.Status)
}

func TestManager_ReapStuck(t *testing.T) {
	ctx := context.Background()
	provider := memory.NewProvider()
	clock := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	manager := NewManager(provider, WithClock(func() time.Time { return clock }))
	store, err := provider.Store(ctx, acme)
	require.NoError(t, err)

	staged, err := manager.Open(ctx, acme, uuid.New(), "staged.csv")
	require.NoError(t, err)
	_, err = manager.Begin(ctx, acme, staged.ID)
	require.NoError(t, err)
	_, err = store.Transactions.Stage(ctx, staged.ID, []domain.Transaction{
		stagedRow(staged.ID, 2, true),
		stagedRow(staged.ID, 3, false),
	})
	require.NoError(t, err)

	empty, err := manager.Open(ctx, acme, uuid.New(), "empty.csv")
	require.NoError(t, err)
	_, err = manager.Begin(ctx, acme, empty.ID)
	require.NoError(t, err)

	stuck, err := manager.ListStuck(ctx, acme, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, stuck, "nothing is older than an hour yet")

	clock = clock.Add(2 * time.Hour)
	settled, err := manager.ReapStuck(ctx, acme, time.Hour)
	require.NoError(t, err)
	require.Len(t, settled, 2)

	recovered, err := manager.Get(ctx, acme, staged.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ImportStatusCompleted, recovered.Status)
	assert.Equal(t, domain.ImportCounters{TotalRows: 2, ValidRows: 1, InvalidRows: 1}, recovered.Counters())
	assert.Equal(t, []string{"row 3: amount is required"}, recovered.ErrorSummary)

	failed, err := manager.Get(ctx, acme, empty.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ImportStatusFailed, failed.Status)
	assert.NotEmpty(t, failed.FailureReason)

	_, err = manager.Recover(ctx, acme, staged.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestRowSummary(t *testing.T) {
	assert.Equal(t, "row 4: amount is required; account_code is required", RowSummary(4, []string{"amount is required", "account_code is required"}))
	assert.Equal(t, "row 9: invalid", RowSummary(9, nil))
}
