package validation

import (
	"context"
	"errors"
	"testing"

	"github.com/rpattn/ledgerflow/internal/domain"
	"github.com/rpattn/ledgerflow/internal/mapping"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	known map[string]bool
	err   error
}

func (s stubChecker) Exists(_ context.Context, code string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.known[code], nil
}

func newEngine(t *testing.T) *mapping.Engine {
	t.Helper()
	engine, err := mapping.NewEngine(domain.NewTemplate("bank", domain.SourceBankStatement, domain.FileFormatCSV, []domain.ColumnMapping{
		{Source: "Date", Target: domain.FieldTransactionDate, Required: true, Format: "yyyy-mm-dd"},
		{Source: "Amount", Target: domain.FieldAmount, Required: true},
		{Source: "Account", Target: domain.FieldAccountCode},
		{Source: "Reference", Target: domain.FieldReferenceNumber},
	}))
	require.NoError(t, err)
	return engine
}

func TestCheck_ValidRow(t *testing.T) {
	v := New(stubChecker{known: map[string]bool{"4000": true}})
	candidate := newEngine(t).Map(2, map[string]string{"Date": "2024-01-15", "Amount": "100", "Account": "4000"})

	outcome := v.Check(context.Background(), candidate)
	assert.True(t, outcome.Valid)
	assert.Empty(t, outcome.Errors)
	assert.Empty(t, outcome.Warnings)
	assert.Equal(t, domain.ValidationStatusValid, outcome.Transaction.ValidationStatus)
	assert.Equal(t, domain.TransactionStatusPending, outcome.Transaction.Status)
}

func TestCheck_CollectsAllErrorsWithoutDuplicates(t *testing.T) {
	v := New(nil)
	candidate := newEngine(t).Map(3, map[string]string{"Date": "", "Amount": "", "Account": "40 00"})

	outcome := v.Check(context.Background(), candidate)
	require.False(t, outcome.Valid)
	require.Len(t, outcome.Errors, 3)
	assert.Contains(t, outcome.Errors[0], "transaction_date is required")
	assert.Contains(t, outcome.Errors[1], "amount is required")
	assert.Contains(t, outcome.Errors[2], "malformed")
	assert.Equal(t, outcome.Errors, outcome.Transaction.ValidationErrors)
	assert.Equal(t, domain.ValidationStatusInvalid, outcome.Transaction.ValidationStatus)
}

func TestCheck_MissingAccountCodeIsError(t *testing.T) {
	v := New(nil)
	candidate := newEngine(t).Map(2, map[string]string{"Date": "2024-01-15", "Amount": "1"})

	outcome := v.Check(context.Background(), candidate)
	assert.False(t, outcome.Valid)
	assert.Equal(t, []string{"account_code is required"}, outcome.Errors)
}

func TestCheck_ChartLookupIsSoft(t *testing.T) {
	candidate := newEngine(t).Map(2, map[string]string{"Date": "2024-01-15", "Amount": "1", "Account": "9999"})

	unknown := New(stubChecker{known: map[string]bool{}}).Check(context.Background(), candidate)
	assert.True(t, unknown.Valid)
	require.Len(t, unknown.Warnings, 1)
	assert.Contains(t, unknown.Warnings[0], "not in the chart of accounts")

	unavailable := New(stubChecker{err: errors.New("down")}).Check(context.Background(), candidate)
	assert.True(t, unavailable.Valid)
	require.Len(t, unavailable.Warnings, 1)
	assert.Contains(t, unavailable.Warnings[0], "could not be verified")
}

func TestDuplicateTracker_WarnsOnly(t *testing.T) {
	v := New(nil)
	engine := newEngine(t)
	tracker := NewDuplicateTracker()

	row := map[string]string{"Date": "2024-01-15", "Amount": "100.00", "Account": "4000", "Reference": "INV-1"}
	first := tracker.Observe(v.Check(context.Background(), engine.Map(2, row)))
	row["Amount"] = "100"
	second := tracker.Observe(v.Check(context.Background(), engine.Map(3, row)))
	row["Reference"] = "INV-2"
	third := tracker.Observe(v.Check(context.Background(), engine.Map(4, row)))

	assert.Empty(t, first.Warnings)
	assert.True(t, second.Valid)
	assert.Equal(t, []string{"possible duplicate of row 2"}, second.Warnings)
	assert.Equal(t, second.Warnings, second.Transaction.ValidationWarnings)
	assert.Empty(t, third.Warnings)
}

func TestRecheck_KeepsDuplicateWarnings(t *testing.T) {
	v := New(stubChecker{known: map[string]bool{"6300": true}})
	outcome := v.Check(context.Background(), newEngine(t).Map(2, map[string]string{"Date": "2024-01-15", "Amount": "5", "Account": "9999"}))
	tx := outcome.Transaction
	tx.ValidationWarnings = append(tx.ValidationWarnings, "possible duplicate of row 1")
	tx.AccountCode = "6300"

	rechecked := v.Recheck(context.Background(), tx)
	assert.True(t, rechecked.Valid)
	assert.Equal(t, []string{"possible duplicate of row 1"}, rechecked.Warnings)

	tx.AccountCode = "bad code!"
	assert.False(t, v.Recheck(context.Background(), tx).Valid)
}
