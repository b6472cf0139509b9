package posting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rpattn/ledgerflow/internal/domain"
	"github.com/rpattn/ledgerflow/internal/repository"
	"github.com/rpattn/ledgerflow/internal/repository/memory"
	"github.com/rpattn/ledgerflow/internal/tenant"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var acme = tenant.Tenant{ID: "acme"}

type ledgerFixture struct {
	provider  *memory.Provider
	store     repository.Store
	service   *Service
	statement domain.Statement
	lineItem  domain.LineItem
	log       domain.ImportLog
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	ctx := context.Background()
	provider := memory.NewProvider()
	store, err := provider.Store(ctx, acme)
	require.NoError(t, err)

	statement := domain.Statement{
		ID:          uuid.New(),
		PeriodStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	}
	item := domain.LineItem{ID: uuid.New(), LineCode: "4100", LineName: "Revenue", Amount: decimal.NewFromInt(5000)}
	provider.Tenant(acme).AddStatement(statement, item)
	item.StatementID = statement.ID

	log, err := store.ImportLogs.Create(ctx, domain.NewImportLog(uuid.New(), "jan.csv"))
	require.NoError(t, err)
	log, err = store.ImportLogs.Transition(ctx, log.ID, domain.ImportStatusPending, domain.ImportStatusProcessing, repository.ImportLogUpdate{})
	require.NoError(t, err)

	return &ledgerFixture{
		provider:  provider,
		store:     store,
		service:   NewService(provider),
		statement: statement,
		lineItem:  item,
		log:       log,
	}
}

// approved stages one valid row and approves it.
func (f *ledgerFixture) approved(t *testing.T, amount int64, date time.Time, account string) domain.Transaction {
	t.Helper()
	ctx := context.Background()
	value := decimal.NewFromInt(amount)
	tx := domain.Transaction{
		ID:                 uuid.New(),
		RowNumber:          2,
		TransactionDate:    &date,
		Amount:             &value,
		AccountCode:        account,
		Status:             domain.TransactionStatusPending,
		ValidationStatus:   domain.ValidationStatusValid,
		ValidationErrors:   []string{},
		ValidationWarnings: []string{},
	}
	_, err := f.store.Transactions.Stage(ctx, f.log.ID, []domain.Transaction{tx})
	require.NoError(t, err)
	approved, err := f.store.Transactions.UpdateStatus(ctx, tx.ID, domain.TransactionStatusPending, domain.TransactionStatusApproved, "")
	require.NoError(t, err)
	return approved
}

func (f *ledgerFixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	item, err := f.store.Ledger.GetLineItem(context.Background(), f.lineItem.ID)
	require.NoError(t, err)
	return item.Amount
}

func (f *ledgerFixture) importedRows(t *testing.T) int {
	t.Helper()
	log, err := f.store.ImportLogs.Get(context.Background(), f.log.ID)
	require.NoError(t, err)
	return log.ImportedRows
}

var midJanuary = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func TestPost_AddsAmountThenConflicts(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	tx := f.approved(t, 1000, midJanuary, "4100")

	receipt, err := f.service.Post(ctx, acme, tx.ID)
	require.NoError(t, err)
	assert.True(t, receipt.FirstPosting)
	assert.True(t, receipt.LineItem.Amount.Equal(decimal.NewFromInt(6000)))
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(6000)))
	assert.NotNil(t, receipt.Transaction.PostedAt)
	assert.Equal(t, f.lineItem.ID, *receipt.Transaction.PostedLineItemID)

	_, err = f.service.Post(ctx, acme, tx.ID)
	assert.ErrorIs(t, err, domain.ErrPostingConflict)
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(6000)))
	assert.Equal(t, 1, f.importedRows(t))
}

func TestPost_ConcurrentDoublePostAppliesOnce(t *testing.T) {
	f := newLedgerFixture(t)
	tx := f.approved(t, 1000, midJanuary, "4100")

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Post(context.Background(), acme, tx.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			assert.ErrorIs(t, err, domain.ErrPostingConflict)
			conflicts++
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, conflicts)
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(6000)))
}

func TestPost_RefusesUnapprovedAndUnresolvable(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	pendingAmount := decimal.NewFromInt(10)
	pending := domain.Transaction{
		ID:               uuid.New(),
		TransactionDate:  &midJanuary,
		Amount:           &pendingAmount,
		AccountCode:      "4100",
		Status:           domain.TransactionStatusPending,
		ValidationStatus: domain.ValidationStatusValid,
	}
	_, err := f.store.Transactions.Stage(ctx, f.log.ID, []domain.Transaction{pending})
	require.NoError(t, err)
	_, err = f.service.Post(ctx, acme, pending.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	outside := f.approved(t, 10, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), "4100")
	_, err = f.service.Post(ctx, acme, outside.ID)
	assert.ErrorIs(t, err, domain.ErrPostingTargetNotFound)

	unknown := f.approved(t, 10, midJanuary, "9999")
	_, err = f.service.Post(ctx, acme, unknown.ID)
	assert.ErrorIs(t, err, domain.ErrPostingTargetNotFound)

	still, err := f.store.Transactions.Get(ctx, unknown.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusApproved, still.Status, "left approved for retry")
	assert.False(t, still.IsPosted())

	_, err = f.service.Post(ctx, acme, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(5000)))
}

func TestPostBatch_PerIDResults(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	a := f.approved(t, 100, midJanuary, "4100")
	b := f.approved(t, 200, midJanuary, "4100")
	orphan := f.approved(t, 300, midJanuary, "9999")

	results, err := f.service.PostBatch(ctx, acme, []uuid.UUID{a.ID, b.ID, orphan.ID, a.ID})
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, a.ID, results[0].ID)
	assert.Equal(t, b.ID, results[1].ID)
	assert.True(t, results[1].Succeeded())
	assert.False(t, results[2].Succeeded())
	assert.Equal(t, "posting_target_not_found", results[2].Kind)

	// the repeated id races with itself: exactly one of the two wins
	wins := 0
	for _, r := range []domain.ItemResult{results[0], results[3]} {
		if r.Succeeded() {
			wins++
		} else {
			assert.Equal(t, "posting_conflict", r.Kind)
		}
	}
	assert.Equal(t, 1, wins)
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(5300)))
}

func TestUnpost_RestoresBalanceAndKeepsApproved(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	tx := f.approved(t, 1000, midJanuary, "4100")

	_, err := f.service.Post(ctx, acme, tx.ID)
	require.NoError(t, err)

	receipt, err := f.service.Unpost(ctx, acme, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusApproved, receipt.Transaction.Status)
	assert.False(t, receipt.Transaction.IsPosted())
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(5000)))

	_, err = f.service.Unpost(ctx, acme, tx.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	// reposting is allowed and does not count the row as imported twice
	again, err := f.service.Post(ctx, acme, tx.ID)
	require.NoError(t, err)
	assert.False(t, again.FirstPosting)
	assert.Equal(t, 1, f.importedRows(t))
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(6000)))
}

func TestReverseStatement(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	other := domain.Statement{
		ID:          uuid.New(),
		PeriodStart: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
	}
	otherItem := domain.LineItem{ID: uuid.New(), LineCode: "4100", Amount: decimal.NewFromInt(100)}
	f.provider.Tenant(acme).AddStatement(other, otherItem)

	a := f.approved(t, 1000, midJanuary, "4100")
	b := f.approved(t, -250, time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC), "4100")
	feb := f.approved(t, 40, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), "4100")
	for _, id := range []uuid.UUID{a.ID, b.ID, feb.ID} {
		_, err := f.service.Post(ctx, acme, id)
		require.NoError(t, err)
	}
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(5750)))

	summary, err := f.service.StatementSummary(ctx, acme, f.statement.ID)
	require.NoError(t, err)
	require.Len(t, summary, 1)
	assert.Equal(t, 2, summary[0].TransactionCount)
	assert.True(t, summary[0].TotalAmount.Equal(decimal.NewFromInt(750)))

	reversal, err := f.service.ReverseStatement(ctx, acme, f.statement.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, reversal.Reversed)
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(5000)), "pre-posting balance restored")

	for _, id := range []uuid.UUID{a.ID, b.ID} {
		tx, err := f.store.Transactions.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.TransactionStatusApproved, tx.Status)
		assert.False(t, tx.IsPosted())
	}

	untouched, err := f.store.Transactions.Get(ctx, feb.ID)
	require.NoError(t, err)
	assert.True(t, untouched.IsPosted(), "postings into other statements stay")
	febItem, err := f.store.Ledger.GetLineItem(ctx, otherItem.ID)
	require.NoError(t, err)
	assert.True(t, febItem.Amount.Equal(decimal.NewFromInt(140)))

	summary, err = f.service.StatementSummary(ctx, acme, f.statement.ID)
	require.NoError(t, err)
	assert.Empty(t, summary)
}

func TestPost_RecordsAuditEvents(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	tx := f.approved(t, 1000, midJanuary, "4100")

	_, err := f.service.Post(ctx, acme, tx.ID)
	require.NoError(t, err)
	_, err = f.service.Unpost(ctx, acme, tx.ID)
	require.NoError(t, err)

	events, err := f.store.Audit.List(ctx, domain.AuditEntityTransaction, tx.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.AuditActionPost, events[0].Action)
	assert.Equal(t, true, events[0].Detail["first_posting"])
	assert.Equal(t, domain.AuditActionUnpost, events[1].Action)
}
