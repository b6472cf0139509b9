// Package posting applies approved transactions to statement line items and reverses them.
package posting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/ledgerflow/internal/audit"
	"github.com/rpattn/ledgerflow/internal/domain"
	"github.com/rpattn/ledgerflow/internal/logger"
	"github.com/rpattn/ledgerflow/internal/repository"
	"github.com/rpattn/ledgerflow/internal/tenant"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Service is the posting engine. Exactly-once posting rests on the conditional write in
// LedgerRepository.ApplyPosting, so unrelated transactions post without contention.
type Service struct {
	stores   repository.StoreProvider
	recorder audit.Sink
	workers  int
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithRecorder sets the external history recorder.
func WithRecorder(recorder audit.Sink) Option {
	return func(s *Service) { s.recorder = recorder }
}

// WithWorkers bounds the ids of one batch processed at once.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a posting engine over stores.
func NewService(stores repository.StoreProvider, opts ...Option) *Service {
	s := &Service{stores: stores, workers: 8, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Receipt describes a completed posting or reversal.
type Receipt struct {
	Transaction  domain.Transaction `json:"transaction"`
	LineItem     domain.LineItem    `json:"line_item"`
	FirstPosting bool               `json:"first_posting"`
}

// Post adds an approved, unposted transaction's amount to the line item of the statement
// whose period contains its date.
func (s *Service) Post(ctx context.Context, t tenant.Tenant, id uuid.UUID) (Receipt, error) {
	store, err := s.stores.Store(ctx, t)
	if err != nil {
		return Receipt{}, err
	}
	return s.post(ctx, t, store, id)
}

func (s *Service) post(ctx context.Context, t tenant.Tenant, store repository.Store, id uuid.UUID) (Receipt, error) {
	tx, err := store.Transactions.Get(ctx, id)
	if err != nil {
		return Receipt{}, err
	}
	if tx.IsPosted() {
		return Receipt{}, fmt.Errorf("transaction %s was posted at %s: %w", id, tx.PostedAt.Format(time.RFC3339), domain.ErrPostingConflict)
	}
	if tx.Status != domain.TransactionStatusApproved {
		return Receipt{}, domain.NewTransitionError(string(tx.Status), "posted", "only approved transactions can be posted")
	}
	if tx.TransactionDate == nil {
		return Receipt{}, fmt.Errorf("%w: transaction %s has no date", domain.ErrValidation, id)
	}

	target, err := store.Ledger.ResolveTarget(ctx, tx.AccountCode, *tx.TransactionDate)
	if err != nil {
		return Receipt{}, err
	}

	applied, err := store.Ledger.ApplyPosting(ctx, id, target, s.now().UTC())
	if err != nil {
		return Receipt{}, err
	}

	l := logger.FromContext(ctx)
	l.Info().
		Str("tenant_id", t.ID).
		Str("transaction_id", id.String()).
		Str("line_item_id", applied.LineItem.ID.String()).
		Str("amount", applied.Transaction.AmountOrZero().String()).
		Str("balance", applied.LineItem.Amount.String()).
		Msg("transaction posted")

	event := domain.NewAuditEvent(t.ID, domain.AuditEntityTransaction, id, domain.AuditActionPost,
		string(domain.TransactionStatusApproved), string(domain.TransactionStatusApproved)).
		WithDetail("statement_id", target.StatementID.String()).
		WithDetail("line_item_id", target.LineItemID.String()).
		WithDetail("amount", applied.Transaction.AmountOrZero().String()).
		WithDetail("first_posting", applied.FirstPosting)
	audit.Emit(ctx, event, store.Audit, s.recorder)

	return Receipt(applied), nil
}

// PostBatch posts every id independently and concurrently.
func (s *Service) PostBatch(ctx context.Context, t tenant.Tenant, ids []uuid.UUID) ([]domain.ItemResult, error) {
	store, err := s.stores.Store(ctx, t)
	if err != nil {
		return nil, err
	}

	results := make([]domain.ItemResult, len(ids))
	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, id := range ids {
		g.Go(func() error {
			receipt, err := s.post(ctx, t, store, id)
			if err != nil {
				results[i] = domain.FailureResult(id, s.statusOf(ctx, store, id), err)
				l := logger.FromContext(ctx)
				l.Debug().Err(err).Str("transaction_id", id.String()).Msg("posting refused")
				return nil
			}
			results[i] = domain.SuccessResult(id, receipt.Transaction.Status)
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// Unpost subtracts a posted transaction's amount from its line item and clears the posting.
// The transaction returns to approved, ready to be posted again.
func (s *Service) Unpost(ctx context.Context, t tenant.Tenant, id uuid.UUID) (Receipt, error) {
	store, err := s.stores.Store(ctx, t)
	if err != nil {
		return Receipt{}, err
	}
	return s.unpost(ctx, t, store, id)
}

func (s *Service) unpost(ctx context.Context, t tenant.Tenant, store repository.Store, id uuid.UUID) (Receipt, error) {
	before, err := store.Transactions.Get(ctx, id)
	if err != nil {
		return Receipt{}, err
	}
	if !before.IsPosted() {
		return Receipt{}, domain.NewTransitionError(string(before.Status), string(domain.TransactionStatusApproved), "transaction is not posted")
	}

	reversed, err := store.Ledger.ReversePosting(ctx, id)
	if err != nil {
		return Receipt{}, err
	}

	l := logger.FromContext(ctx).With().Str("tenant_id", t.ID).Str("transaction_id", id.String()).Logger()
	if reversed.LineItem.ID == uuid.Nil {
		l.Warn().Msg("posted line item no longer exists, posting cleared without balance change")
	} else {
		l.Info().Str("balance", reversed.LineItem.Amount.String()).Msg("transaction unposted")
	}

	event := domain.NewAuditEvent(t.ID, domain.AuditEntityTransaction, id, domain.AuditActionUnpost,
		string(before.Status), string(reversed.Transaction.Status)).
		WithDetail("amount", before.AmountOrZero().String())
	if before.PostedLineItemID != nil {
		event = event.WithDetail("line_item_id", before.PostedLineItemID.String())
	}
	audit.Emit(ctx, event, store.Audit, s.recorder)

	return Receipt(reversed), nil
}

// Reversal summarizes the unposting of one statement.
type Reversal struct {
	StatementID uuid.UUID           `json:"statement_id"`
	Reversed    int                 `json:"reversed"`
	Results     []domain.ItemResult `json:"results"`
}

// ReverseStatement unposts every transaction posted into the statement. It is run before the
// statement is deleted; any failure is returned so the delete can be aborted.
func (s *Service) ReverseStatement(ctx context.Context, t tenant.Tenant, statementID uuid.UUID) (Reversal, error) {
	store, err := s.stores.Store(ctx, t)
	if err != nil {
		return Reversal{}, err
	}
	posted, err := store.Transactions.ListByStatement(ctx, statementID)
	if err != nil {
		return Reversal{}, err
	}

	reversal := Reversal{StatementID: statementID, Results: make([]domain.ItemResult, 0, len(posted))}
	var errs []error
	for _, tx := range posted {
		receipt, err := s.unpost(ctx, t, store, tx.ID)
		if err != nil {
			reversal.Results = append(reversal.Results, domain.FailureResult(tx.ID, tx.Status, err))
			errs = append(errs, fmt.Errorf("transaction %s: %w", tx.ID, err))
			continue
		}
		reversal.Reversed++
		reversal.Results = append(reversal.Results, domain.SuccessResult(tx.ID, receipt.Transaction.Status))
	}

	l := logger.FromContext(ctx)
	l.Info().
		Str("tenant_id", t.ID).
		Str("statement_id", statementID.String()).
		Int("reversed", reversal.Reversed).
		Int("failed", len(errs)).
		Msg("statement postings reversed")
	return reversal, errors.Join(errs...)
}

// StatementSummary returns the posted totals of a statement grouped by account code.
func (s *Service) StatementSummary(ctx context.Context, t tenant.Tenant, statementID uuid.UUID) ([]domain.AccountPostingSummary, error) {
	store, err := s.stores.Store(ctx, t)
	if err != nil {
		return nil, err
	}
	return store.Ledger.StatementSummary(ctx, statementID)
}

func (s *Service) statusOf(ctx context.Context, store repository.Store, id uuid.UUID) domain.TransactionStatus {
	tx, err := store.Transactions.Get(ctx, id)
	if err != nil {
		return ""
	}
	return tx.Status
}
