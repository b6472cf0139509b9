package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rpattn/ledgerflow/internal/domain"
	"github.com/rpattn/ledgerflow/internal/repository"

	"github.com/google/uuid"
)

// LedgerRepository implements posting writes against in-memory statements.
type LedgerRepository struct {
	data *TenantData
}

var _ repository.LedgerRepository = (*LedgerRepository)(nil)

func (r *LedgerRepository) ResolveTarget(_ context.Context, accountCode string, date time.Time) (domain.PostingTarget, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	var (
		best  domain.PostingTarget
		start time.Time
		found bool
	)
	for _, item := range r.data.lineItems {
		if item.LineCode != accountCode {
			continue
		}
		statement, ok := r.data.statements[item.StatementID]
		if !ok || !statement.Contains(date) {
			continue
		}
		if !found || statement.PeriodStart.After(start) {
			best = domain.PostingTarget{StatementID: statement.ID, LineItemID: item.ID}
			start = statement.PeriodStart
			found = true
		}
	}
	if !found {
		return domain.PostingTarget{}, fmt.Errorf("account %s on %s: %w", accountCode, date.Format("2006-01-02"), domain.ErrPostingTargetNotFound)
	}
	return best, nil
}

func (r *LedgerRepository) ApplyPosting(_ context.Context, txID uuid.UUID, target domain.PostingTarget, postedAt time.Time) (repository.PostingReceipt, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	t, ok := r.data.transactions[txID]
	if !ok {
		return repository.PostingReceipt{}, fmt.Errorf("transaction %s: %w", txID, domain.ErrNotFound)
	}
	if t.IsPosted() {
		return repository.PostingReceipt{}, fmt.Errorf("transaction %s already posted: %w", txID, domain.ErrPostingConflict)
	}
	if t.Status != domain.TransactionStatusApproved {
		return repository.PostingReceipt{}, domain.NewTransitionError(string(t.Status), "posted", "only approved transactions can be posted")
	}
	item, ok := r.data.lineItems[target.LineItemID]
	if !ok || item.StatementID != target.StatementID {
		return repository.PostingReceipt{}, fmt.Errorf("line item %s: %w", target.LineItemID, domain.ErrPostingTargetNotFound)
	}

	first := t.FirstPostedAt == nil
	at := postedAt.UTC()
	statementID := target.StatementID
	lineItemID := target.LineItemID

	item.Amount = item.Amount.Add(t.AmountOrZero())
	t.PostedAt = &at
	if first {
		firstAt := at
		t.FirstPostedAt = &firstAt
		if log, ok := r.data.logs[t.ImportLogID]; ok {
			log.ImportedRows++
			log.UpdatedAt = at
		}
	}
	t.PostedStatementID = &statementID
	t.PostedLineItemID = &lineItemID
	t.UpdatedAt = at

	return repository.PostingReceipt{
		Transaction:  cloneTransaction(*t),
		LineItem:     *item,
		FirstPosting: first,
	}, nil
}

func (r *LedgerRepository) ReversePosting(_ context.Context, txID uuid.UUID) (repository.PostingReceipt, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	t, ok := r.data.transactions[txID]
	if !ok {
		return repository.PostingReceipt{}, fmt.Errorf("transaction %s: %w", txID, domain.ErrNotFound)
	}
	if !t.IsPosted() {
		return repository.PostingReceipt{}, domain.NewTransitionError(string(t.Status), string(t.Status), "transaction is not posted")
	}

	var receipt repository.PostingReceipt
	if t.PostedLineItemID != nil {
		if item, ok := r.data.lineItems[*t.PostedLineItemID]; ok {
			item.Amount = item.Amount.Sub(t.AmountOrZero())
			receipt.LineItem = *item
		}
	}

	t.PostedAt = nil
	t.PostedStatementID = nil
	t.PostedLineItemID = nil
	t.Status = domain.TransactionStatusApproved
	t.UpdatedAt = time.Now().UTC()

	receipt.Transaction = cloneTransaction(*t)
	return receipt, nil
}

func (r *LedgerRepository) GetLineItem(_ context.Context, id uuid.UUID) (domain.LineItem, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	item, ok := r.data.lineItems[id]
	if !ok {
		return domain.LineItem{}, fmt.Errorf("line item %s: %w", id, domain.ErrNotFound)
	}
	return *item, nil
}

func (r *LedgerRepository) StatementSummary(_ context.Context, statementID uuid.UUID) ([]domain.AccountPostingSummary, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	byAccount := make(map[string]*domain.AccountPostingSummary)
	for _, t := range r.data.transactions {
		if !t.IsPosted() || t.PostedStatementID == nil || *t.PostedStatementID != statementID {
			continue
		}
		summary, ok := byAccount[t.AccountCode]
		if !ok {
			summary = &domain.AccountPostingSummary{AccountCode: t.AccountCode}
			byAccount[t.AccountCode] = summary
		}
		summary.TransactionCount++
		summary.TotalAmount = summary.TotalAmount.Add(t.AmountOrZero())
		if t.TransactionDate != nil {
			date := *t.TransactionDate
			if summary.EarliestDate == nil || date.Before(*summary.EarliestDate) {
				summary.EarliestDate = &date
			}
			if summary.LatestDate == nil || date.After(*summary.LatestDate) {
				summary.LatestDate = &date
			}
		}
	}

	summaries := make([]domain.AccountPostingSummary, 0, len(byAccount))
	for _, summary := range byAccount {
		summaries = append(summaries, *summary)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].AccountCode < summaries[j].AccountCode })
	return summaries, nil
}
