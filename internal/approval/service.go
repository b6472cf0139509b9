// Package approval moves staged transactions through pending -> approved | rejected.
package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/ledgerflow/internal/accountloader"
	"github.com/rpattn/ledgerflow/internal/audit"
	"github.com/rpattn/ledgerflow/internal/domain"
	"github.com/rpattn/ledgerflow/internal/importlog"
	"github.com/rpattn/ledgerflow/internal/logger"
	"github.com/rpattn/ledgerflow/internal/repository"
	"github.com/rpattn/ledgerflow/internal/tenant"
	"github.com/rpattn/ledgerflow/internal/validation"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Poster posts approved transactions. posting.Service implements it.
type Poster interface {
	PostBatch(ctx context.Context, t tenant.Tenant, ids []uuid.UUID) ([]domain.ItemResult, error)
}

// Service is the approval workflow.
type Service struct {
	stores   repository.StoreProvider
	logs     *importlog.Manager
	poster   Poster
	recorder audit.Sink
	workers  int
}

// Option customizes a Service.
type Option func(*Service)

// WithPoster enables auto_post on approve.
func WithPoster(poster Poster) Option {
	return func(s *Service) { s.poster = poster }
}

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

// NewService creates the workflow. logs is used to refine import logs after rejections.
func NewService(stores repository.StoreProvider, logs *importlog.Manager, opts ...Option) *Service {
	s := &Service{stores: stores, logs: logs, workers: 8}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const (
	msgInvalidRow  = "invalid row cannot be approved"
	msgRejectedRow = "rejected row cannot be approved"
	msgApprovedRow = "approved row cannot be rejected"
	msgNotEditable = "only pending, valid, unposted rows can be amended"
	msgPostedRow   = "posted rows cannot be deleted"
)

// ApproveResult is the outcome of an approve call.
type ApproveResult struct {
	Results  []domain.ItemResult `json:"results"`
	Postings []domain.ItemResult `json:"postings,omitempty"`
}

// Approve moves each pending, valid id to approved. Already approved ids succeed unchanged.
// With autoPost the ids that end up approved are handed to the posting engine.
func (s *Service) Approve(ctx context.Context, t tenant.Tenant, ids []uuid.UUID, autoPost bool) (ApproveResult, error) {
	if autoPost && s.poster == nil {
		return ApproveResult{}, fmt.Errorf("%w: auto_post is not available", domain.ErrValidation)
	}
	store, err := s.stores.Store(ctx, t)
	if err != nil {
		return ApproveResult{}, err
	}

	results := s.each(ctx, ids, func(ctx context.Context, id uuid.UUID) domain.ItemResult {
		return s.approve(ctx, t, store, id)
	})
	out := ApproveResult{Results: results}

	if autoPost {
		var approved []uuid.UUID
		seen := make(map[uuid.UUID]bool)
		for _, r := range results {
			if r.Succeeded() && !seen[r.ID] {
				seen[r.ID] = true
				approved = append(approved, r.ID)
			}
		}
		if len(approved) > 0 {
			postings, err := s.poster.PostBatch(ctx, t, approved)
			if err != nil {
				return out, err
			}
			out.Postings = postings
		}
	}
	return out, nil
}

func (s *Service) approve(ctx context.Context, t tenant.Tenant, store repository.Store, id uuid.UUID) domain.ItemResult {
	tx, err := store.Transactions.Get(ctx, id)
	if err != nil {
		return domain.FailureResult(id, "", err)
	}

	switch tx.Status {
	case domain.TransactionStatusApproved:
		return domain.SuccessResult(id, tx.Status)
	case domain.TransactionStatusRejected:
		return domain.FailureResult(id, tx.Status, domain.NewTransitionError(string(tx.Status), string(domain.TransactionStatusApproved), msgRejectedRow))
	}
	if !tx.IsValid() {
		return domain.FailureResult(id, tx.Status, domain.NewTransitionError(string(tx.Status), string(domain.TransactionStatusApproved), msgInvalidRow))
	}

	updated, err := store.Transactions.UpdateStatus(ctx, id, domain.TransactionStatusPending, domain.TransactionStatusApproved, "")
	if err != nil {
		if errors.Is(err, domain.ErrInvalidStateTransition) {
			// lost a race; settle on whatever state won
			return s.approve(ctx, t, store, id)
		}
		return domain.FailureResult(id, tx.Status, err)
	}

	s.record(ctx, t, store, domain.NewAuditEvent(t.ID, domain.AuditEntityTransaction, id, domain.AuditActionApprove,
		string(domain.TransactionStatusPending), string(domain.TransactionStatusApproved)))
	return domain.SuccessResult(id, updated.Status)
}

// Reject moves each pending id to rejected with reason. Already rejected ids succeed
// unchanged; approved ids fail. Import logs that gain a rejected row are refined.
func (s *Service) Reject(ctx context.Context, t tenant.Tenant, ids []uuid.UUID, reason string) ([]domain.ItemResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: a rejection reason is required", domain.ErrValidation)
	}
	store, err := s.stores.Store(ctx, t)
	if err != nil {
		return nil, err
	}

	logIDs := make([]uuid.UUID, len(ids))
	results := s.eachIndexed(ctx, ids, func(ctx context.Context, i int, id uuid.UUID) domain.ItemResult {
		result, logID := s.reject(ctx, t, store, id, reason)
		logIDs[i] = logID
		return result
	})

	refined := make(map[uuid.UUID]bool)
	for _, logID := range logIDs {
		if logID == uuid.Nil || refined[logID] {
			continue
		}
		refined[logID] = true
		if _, err := s.logs.Refine(ctx, t, logID); err != nil {
			l := logger.FromContext(ctx)
			l.Warn().Err(err).Str("import_id", logID.String()).Msg("failed to refine import status")
		}
	}
	return results, nil
}

// reject returns the import log id when this call performed the transition.
func (s *Service) reject(ctx context.Context, t tenant.Tenant, store repository.Store, id uuid.UUID, reason string) (domain.ItemResult, uuid.UUID) {
	tx, err := store.Transactions.Get(ctx, id)
	if err != nil {
		return domain.FailureResult(id, "", err), uuid.Nil
	}

	switch tx.Status {
	case domain.TransactionStatusRejected:
		return domain.SuccessResult(id, tx.Status), uuid.Nil
	case domain.TransactionStatusApproved:
		return domain.FailureResult(id, tx.Status, domain.NewTransitionError(string(tx.Status), string(domain.TransactionStatusRejected), msgApprovedRow)), uuid.Nil
	}

	updated, err := store.Transactions.UpdateStatus(ctx, id, domain.TransactionStatusPending, domain.TransactionStatusRejected, reason)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidStateTransition) {
			return s.reject(ctx, t, store, id, reason)
		}
		return domain.FailureResult(id, tx.Status, err), uuid.Nil
	}

	event := domain.NewAuditEvent(t.ID, domain.AuditEntityTransaction, id, domain.AuditActionReject,
		string(domain.TransactionStatusPending), string(domain.TransactionStatusRejected)).
		WithDetail("reason", reason)
	s.record(ctx, t, store, event)
	return domain.SuccessResult(id, updated.Status), updated.ImportLogID
}

// Delete removes a pending or rejected transaction that was never posted.
func (s *Service) Delete(ctx context.Context, t tenant.Tenant, id uuid.UUID) error {
	store, err := s.stores.Store(ctx, t)
	if err != nil {
		return err
	}
	tx, err := store.Transactions.Get(ctx, id)
	if err != nil {
		return err
	}
	if tx.IsPosted() || tx.FirstPostedAt != nil {
		return domain.NewTransitionError(string(tx.Status), "deleted", msgPostedRow)
	}
	if tx.Status == domain.TransactionStatusApproved {
		return domain.NewTransitionError(string(tx.Status), "deleted", "approved rows cannot be deleted")
	}

	if err := store.Transactions.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, t, store, domain.NewAuditEvent(t.ID, domain.AuditEntityTransaction, id, domain.AuditActionDelete, string(tx.Status), "").
		WithDetail("import_log_id", tx.ImportLogID.String()).
		WithDetail("row_number", tx.RowNumber))
	return nil
}

// Amend rewrites the editable fields of a pending, valid transaction and re-validates it.
// An amendment that would make the row invalid is refused, so the import counters stay true.
func (s *Service) Amend(ctx context.Context, t tenant.Tenant, id uuid.UUID, amendment domain.TransactionAmendment) (domain.Transaction, error) {
	store, err := s.stores.Store(ctx, t)
	if err != nil {
		return domain.Transaction{}, err
	}
	tx, err := store.Transactions.Get(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	if tx.Status != domain.TransactionStatusPending || !tx.IsValid() || tx.IsPosted() {
		return domain.Transaction{}, domain.NewTransitionError(string(tx.Status), string(tx.Status), msgNotEditable)
	}

	amendment.Apply(&tx)
	validator := validation.New(accountloader.NewAccountLoader(store.Accounts, time.Millisecond))
	outcome := validator.Recheck(ctx, tx)
	if !outcome.Valid {
		return domain.Transaction{}, fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(outcome.Errors, "; "))
	}

	amended, err := store.Transactions.Amend(ctx, outcome.Transaction)
	if err != nil {
		return domain.Transaction{}, err
	}
	s.record(ctx, t, store, domain.NewAuditEvent(t.ID, domain.AuditEntityTransaction, id, domain.AuditActionAmend, string(tx.Status), string(amended.Status)).
		WithDetail("warnings", amended.ValidationWarnings))
	return amended, nil
}

// Get returns one staged transaction.
func (s *Service) Get(ctx context.Context, t tenant.Tenant, id uuid.UUID) (domain.Transaction, error) {
	store, err := s.stores.Store(ctx, t)
	if err != nil {
		return domain.Transaction{}, err
	}
	return store.Transactions.Get(ctx, id)
}

// List returns staged transactions matching filter.
func (s *Service) List(ctx context.Context, t tenant.Tenant, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	store, err := s.stores.Store(ctx, t)
	if err != nil {
		return nil, err
	}
	return store.Transactions.List(ctx, filter)
}

func (s *Service) each(ctx context.Context, ids []uuid.UUID, fn func(context.Context, uuid.UUID) domain.ItemResult) []domain.ItemResult {
	return s.eachIndexed(ctx, ids, func(ctx context.Context, _ int, id uuid.UUID) domain.ItemResult {
		return fn(ctx, id)
	})
}

func (s *Service) eachIndexed(ctx context.Context, ids []uuid.UUID, fn func(context.Context, int, uuid.UUID) domain.ItemResult) []domain.ItemResult {
	results := make([]domain.ItemResult, len(ids))
	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = fn(ctx, i, id)
			if !results[i].Succeeded() {
				l := logger.FromContext(ctx)
				l.Debug().
					Str("transaction_id", id.String()).
					Str("error", results[i].Error).
					Msg("transition refused")
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Service) record(ctx context.Context, t tenant.Tenant, store repository.Store, event domain.AuditEvent) {
	l := logger.FromContext(ctx)
	l.Info().
		Str("tenant_id", t.ID).
		Str("transaction_id", event.EntityID.String()).
		Str("action", string(event.Action)).
		Msg("transaction status changed")
	audit.Emit(ctx, event, store.Audit, s.recorder)
}
