// Package validation applies business rules to mapped rows.
package validation

import (
	"context"
	"fmt"
	"regexp"

	"github.com/rpattn/ledgerflow/internal/domain"
	"github.com/rpattn/ledgerflow/internal/mapping"
)

var accountCodePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,31}$`)

// AccountChecker answers chart-of-accounts existence. accountloader.AccountLoader implements it.
type AccountChecker interface {
	Exists(ctx context.Context, code string) (bool, error)
}

// Outcome is the tagged result of validating one row.
type Outcome struct {
	Valid       bool
	Transaction domain.Transaction
	Errors      []string
	Warnings    []string
}

// Validator runs the per-row rules. It is safe for concurrent use when its checker is.
type Validator struct {
	accounts AccountChecker
}

// New creates a validator. A nil checker skips the chart-of-accounts lookup.
func New(accounts AccountChecker) *Validator {
	return &Validator{accounts: accounts}
}

// Check validates a candidate. Every rule runs; all failures are collected.
func (v *Validator) Check(ctx context.Context, candidate mapping.Candidate) Outcome {
	tx := candidate.Transaction
	errs := make([]string, 0, len(candidate.Errors))
	for _, mappingErr := range candidate.Errors {
		errs = append(errs, mappingErr.Error())
	}
	var warnings []string

	if tx.TransactionDate == nil && !candidate.HasFieldError(domain.FieldTransactionDate) {
		errs = append(errs, "transaction_date is required")
	}

	amountFailed := candidate.HasFieldError(domain.FieldAmount) ||
		candidate.HasFieldError(domain.FieldDebit) ||
		candidate.HasFieldError(domain.FieldCredit)
	if tx.Amount == nil && !amountFailed {
		errs = append(errs, "amount is required")
	}

	accountErrs, accountWarnings := v.checkAccount(ctx, candidate)
	errs = append(errs, accountErrs...)
	warnings = append(warnings, accountWarnings...)

	return finish(tx, errs, warnings)
}

// Recheck re-runs the account rules after an amendment. Date and amount are not editable,
// so their results carry over from the stored row.
func (v *Validator) Recheck(ctx context.Context, tx domain.Transaction) Outcome {
	candidate := mapping.Candidate{RowNumber: tx.RowNumber, Transaction: tx}
	errs, warnings := v.checkAccount(ctx, candidate)

	if tx.TransactionDate == nil {
		errs = append([]string{"transaction_date is required"}, errs...)
	}
	if tx.Amount == nil {
		errs = append(errs, "amount is required")
	}
	for _, warning := range tx.ValidationWarnings {
		if isDuplicateWarning(warning) {
			warnings = append(warnings, warning)
		}
	}
	return finish(tx, errs, warnings)
}

func (v *Validator) checkAccount(ctx context.Context, candidate mapping.Candidate) (errs, warnings []string) {
	code := candidate.Transaction.AccountCode
	if candidate.HasFieldError(domain.FieldAccountCode) {
		return nil, nil
	}
	if code == "" {
		return []string{"account_code is required"}, nil
	}
	if !accountCodePattern.MatchString(code) {
		return []string{fmt.Sprintf("account_code %q is malformed", code)}, nil
	}
	if v.accounts == nil {
		return nil, nil
	}

	exists, err := v.accounts.Exists(ctx, code)
	if err != nil {
		return nil, []string{fmt.Sprintf("account_code %s could not be verified against the chart of accounts", code)}
	}
	if !exists {
		return nil, []string{fmt.Sprintf("account_code %s is not in the chart of accounts", code)}
	}
	return nil, nil
}

func finish(tx domain.Transaction, errs, warnings []string) Outcome {
	if errs == nil {
		errs = []string{}
	}
	if warnings == nil {
		warnings = []string{}
	}

	tx.ValidationErrors = errs
	tx.ValidationWarnings = warnings
	if len(errs) == 0 {
		tx.ValidationStatus = domain.ValidationStatusValid
	} else {
		tx.ValidationStatus = domain.ValidationStatusInvalid
	}
	if tx.Status == "" {
		tx.Status = domain.TransactionStatusPending
	}

	return Outcome{
		Valid:       len(errs) == 0,
		Transaction: tx,
		Errors:      errs,
		Warnings:    warnings,
	}
}
