package repository

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rpattn/ledgerflow/internal/db"
	"github.com/rpattn/ledgerflow/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireDatabase connects to the migrated test database named by LEDGERFLOW_TEST_DB_HOST,
// or skips when it is unset.
func requireDatabase(t *testing.T) *db.Connection {
	t.Helper()
	host := os.Getenv("LEDGERFLOW_TEST_DB_HOST")
	if host == "" {
		t.Skip("LEDGERFLOW_TEST_DB_HOST not set, skipping postgres test")
	}

	cfg := db.DefaultConfig()
	cfg.Host = host
	if port, err := strconv.Atoi(os.Getenv("LEDGERFLOW_TEST_DB_PORT")); err == nil {
		cfg.Port = port
	}
	if password := os.Getenv("LEDGERFLOW_TEST_DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if name := os.Getenv("LEDGERFLOW_TEST_DB_NAME"); name != "" {
		cfg.DBName = name
	}

	_, err := db.Migrate(cfg)
	require.NoError(t, err)
	conn, err := db.NewConnection(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	return conn
}

type pgFixture struct {
	conn   *db.Connection
	logs   ImportLogRepository
	txs    TransactionRepository
	ledger LedgerRepository
	target domain.PostingTarget
	log    domain.ImportLog
}

func newPGFixture(t *testing.T) *pgFixture {
	t.Helper()
	ctx := context.Background()
	conn := requireDatabase(t)

	f := &pgFixture{
		conn:   conn,
		logs:   NewImportLogRepository(conn.Pool),
		txs:    NewTransactionRepository(conn.Pool),
		ledger: NewLedgerRepository(conn.Pool),
		target: domain.PostingTarget{StatementID: uuid.New(), LineItemID: uuid.New()},
	}

	_, err := conn.Pool.Exec(ctx,
		`INSERT INTO financial_statements (id, period_start, period_end) VALUES ($1, '2024-01-01', '2024-01-31')`,
		f.target.StatementID)
	require.NoError(t, err)
	_, err = conn.Pool.Exec(ctx,
		`INSERT INTO financial_line_items (id, statement_id, line_code, line_name, amount) VALUES ($1, $2, '4100', 'Revenue', 100)`,
		f.target.LineItemID, f.target.StatementID)
	require.NoError(t, err)

	log, err := f.logs.Create(ctx, domain.NewImportLog(uuid.New(), "race.csv"))
	require.NoError(t, err)
	f.log, err = f.logs.Transition(ctx, log.ID, domain.ImportStatusPending, domain.ImportStatusProcessing, ImportLogUpdate{})
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx := context.Background()
		_, _ = conn.Pool.Exec(ctx, `DELETE FROM imported_transactions WHERE import_log_id = $1`, f.log.ID)
		_, _ = conn.Pool.Exec(ctx, `DELETE FROM import_logs WHERE id = $1`, f.log.ID)
		_, _ = conn.Pool.Exec(ctx, `DELETE FROM financial_statements WHERE id = $1`, f.target.StatementID)
	})
	return f
}

func (f *pgFixture) stageApproved(t *testing.T, amount string) domain.Transaction {
	t.Helper()
	ctx := context.Background()
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	value := decimal.RequireFromString(amount)
	tx := domain.Transaction{
		ID:               uuid.New(),
		RowNumber:        2,
		TransactionDate:  &date,
		Amount:           &value,
		AccountCode:      "4100",
		Status:           domain.TransactionStatusApproved,
		ValidationStatus: domain.ValidationStatusValid,
	}
	counts, err := f.txs.Stage(ctx, f.log.ID, []domain.Transaction{tx})
	require.NoError(t, err)

	counters := domain.ImportCounters{TotalRows: counts.Total, ValidRows: counts.Valid, InvalidRows: counts.Invalid}
	f.log, err = f.logs.Transition(ctx, f.log.ID, domain.ImportStatusProcessing, domain.ImportStatusCompleted, ImportLogUpdate{
		Counters:  &counters,
		Completed: true,
	})
	require.NoError(t, err)
	return tx
}

func TestPostgres_ConcurrentApplyPostingPostsOnce(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	tx := f.stageApproved(t, "25.50")

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
		others    []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.ApplyPosting(ctx, tx.ID, f.target, time.Now())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrPostingConflict):
				conflicts++
			default:
				others = append(others, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, others)
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, callers-1, conflicts)

	item, err := f.ledger.GetLineItem(ctx, f.target.LineItemID)
	require.NoError(t, err)
	assert.True(t, item.Amount.Equal(decimal.RequireFromString("125.50")), "balance %s", item.Amount)

	log, err := f.logs.Get(ctx, f.log.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, log.ImportedRows)
}

func TestPostgres_RepostCountsFirstPostingOnce(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	tx := f.stageApproved(t, "10")

	receipt, err := f.ledger.ApplyPosting(ctx, tx.ID, f.target, time.Now())
	require.NoError(t, err)
	assert.True(t, receipt.FirstPosting)

	_, err = f.ledger.ReversePosting(ctx, tx.ID)
	require.NoError(t, err)
	_, err = f.ledger.ReversePosting(ctx, tx.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition, "a second reversal has nothing to undo")

	receipt, err = f.ledger.ApplyPosting(ctx, tx.ID, f.target, time.Now())
	require.NoError(t, err)
	assert.False(t, receipt.FirstPosting)
	assert.True(t, receipt.LineItem.Amount.Equal(decimal.NewFromInt(110)))

	log, err := f.logs.Get(ctx, f.log.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, log.ImportedRows)
}

func TestPostgres_StageRequiresProcessingLog(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()

	_, err := f.logs.Transition(ctx, f.log.ID, domain.ImportStatusProcessing, domain.ImportStatusFailed, ImportLogUpdate{
		FailureReason:        "interrupted",
		Completed:            true,
		RequireNothingStaged: true,
	})
	require.NoError(t, err)

	_, err = f.txs.Stage(ctx, f.log.ID, []domain.Transaction{{
		ID:               uuid.New(),
		RowNumber:        2,
		Status:           domain.TransactionStatusPending,
		ValidationStatus: domain.ValidationStatusInvalid,
	}})
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	counts, err := f.txs.CountByLog(ctx, f.log.ID)
	require.NoError(t, err)
	assert.Zero(t, counts.Total)
}

func TestPostgres_FailRefusedOnceRowsStaged(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()

	_, err := f.txs.Stage(ctx, f.log.ID, []domain.Transaction{{
		ID:               uuid.New(),
		RowNumber:        2,
		Status:           domain.TransactionStatusPending,
		ValidationStatus: domain.ValidationStatusInvalid,
	}})
	require.NoError(t, err)

	_, err = f.logs.Transition(ctx, f.log.ID, domain.ImportStatusProcessing, domain.ImportStatusFailed, ImportLogUpdate{
		RequireNothingStaged: true,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	current, err := f.logs.Get(ctx, f.log.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ImportStatusProcessing, current.Status)
}
