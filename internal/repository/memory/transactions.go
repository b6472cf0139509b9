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

// TransactionRepository implements the staging store in memory.
type TransactionRepository struct {
	data *TenantData
}

var _ repository.TransactionRepository = (*TransactionRepository)(nil)

func (r *TransactionRepository) Stage(ctx context.Context, logID uuid.UUID, txs []domain.Transaction) (domain.StatusCounts, error) {
	if err := ctx.Err(); err != nil {
		return domain.StatusCounts{}, fmt.Errorf("failed to stage transactions: %w", err)
	}

	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	log, ok := r.data.logs[logID]
	if !ok {
		return domain.StatusCounts{}, fmt.Errorf("failed to stage transactions: import log %s: %w", logID, domain.ErrNotFound)
	}
	if log.Status != domain.ImportStatusProcessing {
		return domain.StatusCounts{}, domain.NewTransitionError(string(log.Status), string(domain.ImportStatusProcessing),
			fmt.Sprintf("import %s is %s, rows can only be staged while processing", logID, log.Status))
	}

	// Build the full batch before touching the table so a bad row stages nothing.
	now := time.Now().UTC()
	batch := make([]*domain.Transaction, 0, len(txs))
	for _, t := range txs {
		stored := cloneTransaction(t)
		if stored.ID == uuid.Nil {
			stored.ID = uuid.New()
		}
		if _, exists := r.data.transactions[stored.ID]; exists {
			return domain.StatusCounts{}, fmt.Errorf("failed to stage transactions: duplicate id %s", stored.ID)
		}
		if stored.Status == "" {
			stored.Status = domain.TransactionStatusPending
		}
		stored.ImportLogID = logID
		stored.CreatedAt = now
		stored.UpdatedAt = now
		batch = append(batch, &stored)
	}
	for _, stored := range batch {
		r.data.transactions[stored.ID] = stored
	}

	return r.countLocked(logID), nil
}

func (r *TransactionRepository) Get(_ context.Context, id uuid.UUID) (domain.Transaction, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()
	return r.getLocked(id)
}

func (r *TransactionRepository) List(_ context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	txs := []domain.Transaction{}
	for _, t := range r.data.transactions {
		if filter.ImportLogID != nil && t.ImportLogID != *filter.ImportLogID {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		txs = append(txs, cloneTransaction(*t))
	}
	sortTransactions(txs)
	if filter.Limit > 0 && len(txs) > filter.Limit {
		txs = txs[:filter.Limit]
	}
	return txs, nil
}

func (r *TransactionRepository) CountByLog(_ context.Context, logID uuid.UUID) (domain.StatusCounts, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()
	return r.countLocked(logID), nil
}

func (r *TransactionRepository) CountByStatus(_ context.Context, logID uuid.UUID) (map[domain.TransactionStatus]int, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	counts := make(map[domain.TransactionStatus]int)
	for _, t := range r.data.transactions {
		if t.ImportLogID == logID {
			counts[t.Status]++
		}
	}
	return counts, nil
}

func (r *TransactionRepository) UpdateStatus(_ context.Context, id uuid.UUID, from, to domain.TransactionStatus, reason string) (domain.Transaction, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	t, ok := r.data.transactions[id]
	if !ok {
		return domain.Transaction{}, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	if t.Status != from || t.IsPosted() || (to == domain.TransactionStatusApproved && !t.IsValid()) {
		return domain.Transaction{}, domain.NewTransitionError(string(t.Status), string(to), "")
	}

	t.Status = to
	if to == domain.TransactionStatusRejected {
		t.RejectionReason = reason
	}
	t.UpdatedAt = time.Now().UTC()
	return cloneTransaction(*t), nil
}

func (r *TransactionRepository) Amend(_ context.Context, amended domain.Transaction) (domain.Transaction, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	t, ok := r.data.transactions[amended.ID]
	if !ok {
		return domain.Transaction{}, fmt.Errorf("transaction %s: %w", amended.ID, domain.ErrNotFound)
	}
	if t.Status != domain.TransactionStatusPending || t.IsPosted() {
		return domain.Transaction{}, domain.NewTransitionError(string(t.Status), string(t.Status), "only pending transactions can be amended")
	}

	t.AccountCode = amended.AccountCode
	t.Description = amended.Description
	t.VendorCustomer = amended.VendorCustomer
	t.Department = amended.Department
	t.Category = amended.Category
	t.ValidationStatus = amended.ValidationStatus
	t.ValidationErrors = append([]string{}, amended.ValidationErrors...)
	t.ValidationWarnings = append([]string{}, amended.ValidationWarnings...)
	t.UpdatedAt = time.Now().UTC()
	return cloneTransaction(*t), nil
}

func (r *TransactionRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	t, ok := r.data.transactions[id]
	if !ok {
		return fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	deletable := t.Status == domain.TransactionStatusPending || t.Status == domain.TransactionStatusRejected
	if !deletable || t.FirstPostedAt != nil {
		return domain.NewTransitionError(string(t.Status), "deleted", "only pending or rejected transactions that were never posted can be deleted")
	}
	delete(r.data.transactions, id)
	return nil
}

func (r *TransactionRepository) ListByStatement(_ context.Context, statementID uuid.UUID) ([]domain.Transaction, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	txs := []domain.Transaction{}
	for _, t := range r.data.transactions {
		if t.IsPosted() && t.PostedStatementID != nil && *t.PostedStatementID == statementID {
			txs = append(txs, cloneTransaction(*t))
		}
	}
	sortTransactions(txs)
	return txs, nil
}

func (r *TransactionRepository) getLocked(id uuid.UUID) (domain.Transaction, error) {
	t, ok := r.data.transactions[id]
	if !ok {
		return domain.Transaction{}, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	return cloneTransaction(*t), nil
}

func (r *TransactionRepository) countLocked(logID uuid.UUID) domain.StatusCounts {
	var counts domain.StatusCounts
	for _, t := range r.data.transactions {
		if t.ImportLogID != logID {
			continue
		}
		counts.Total++
		if t.IsValid() {
			counts.Valid++
		} else {
			counts.Invalid++
		}
	}
	return counts
}

func sortTransactions(txs []domain.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if txs[i].ImportLogID != txs[j].ImportLogID {
			return txs[i].ImportLogID.String() < txs[j].ImportLogID.String()
		}
		return txs[i].RowNumber < txs[j].RowNumber
	})
}
