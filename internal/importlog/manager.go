// Package importlog owns the lifecycle of import runs: pending -> processing ->
// completed | failed, with completed -> partially_completed once rows are rejected.
package importlog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/ledgerflow/internal/audit"
	"github.com/rpattn/ledgerflow/internal/domain"
	"github.com/rpattn/ledgerflow/internal/logger"
	"github.com/rpattn/ledgerflow/internal/repository"
	"github.com/rpattn/ledgerflow/internal/tenant"

	"github.com/google/uuid"
)

// DefaultSummaryLimit caps the error summary kept on a log.
const DefaultSummaryLimit = 10

// Manager drives import log transitions and records them.
type Manager struct {
	stores       repository.StoreProvider
	recorder     audit.Sink
	summaryLimit int
	now          func() time.Time
}

// Option customizes a Manager.
type Option func(*Manager)

// WithRecorder sets the external history recorder. Events are always written to the
// tenant's audit table as well.
func WithRecorder(recorder audit.Sink) Option {
	return func(m *Manager) { m.recorder = recorder }
}

// WithSummaryLimit caps the number of row errors kept in error_summary.
func WithSummaryLimit(limit int) Option {
	return func(m *Manager) {
		if limit > 0 {
			m.summaryLimit = limit
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager over stores.
func NewManager(stores repository.StoreProvider, opts ...Option) *Manager {
	m := &Manager{
		stores:       stores,
		summaryLimit: DefaultSummaryLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SummaryLimit returns the configured error summary cap.
func (m *Manager) SummaryLimit() int {
	return m.summaryLimit
}

// Open creates a pending log for an upload.
func (m *Manager) Open(ctx context.Context, t tenant.Tenant, templateID uuid.UUID, fileName string) (domain.ImportLog, error) {
	store, err := m.stores.Store(ctx, t)
	if err != nil {
		return domain.ImportLog{}, err
	}

	log := domain.NewImportLog(templateID, fileName)
	log.StartedAt = m.now().UTC()
	log.UpdatedAt = log.StartedAt
	created, err := store.ImportLogs.Create(ctx, log)
	if err != nil {
		return domain.ImportLog{}, fmt.Errorf("failed to create import log: %w", err)
	}

	m.record(ctx, t, store, created.ID, domain.AuditActionCreate, "", domain.ImportStatusPending, map[string]any{
		"template_id": templateID.String(),
		"file_name":   fileName,
	})
	return created, nil
}

// Begin marks a pending log as processing.
func (m *Manager) Begin(ctx context.Context, t tenant.Tenant, id uuid.UUID) (domain.ImportLog, error) {
	return m.transition(ctx, t, id, domain.ImportStatusPending, domain.ImportStatusProcessing, domain.AuditActionValidate, repository.ImportLogUpdate{}, nil)
}

// Complete freezes the counters of a processing log. The counters must balance.
func (m *Manager) Complete(ctx context.Context, t tenant.Tenant, id uuid.UUID, counters domain.ImportCounters, summary []string) (domain.ImportLog, error) {
	if !counters.Balanced() {
		return domain.ImportLog{}, fmt.Errorf("import %s: valid %d + invalid %d != total %d", id, counters.ValidRows, counters.InvalidRows, counters.TotalRows)
	}
	update := repository.ImportLogUpdate{
		Counters:     &counters,
		ErrorSummary: m.capSummary(summary),
		Completed:    true,
	}
	return m.transition(ctx, t, id, domain.ImportStatusProcessing, domain.ImportStatusCompleted, domain.AuditActionComplete, update, map[string]any{
		"total_rows":   counters.TotalRows,
		"valid_rows":   counters.ValidRows,
		"invalid_rows": counters.InvalidRows,
	})
}

// Fail moves a pending or processing log to failed with reason.
func (m *Manager) Fail(ctx context.Context, t tenant.Tenant, id uuid.UUID, reason string) (domain.ImportLog, error) {
	store, err := m.stores.Store(ctx, t)
	if err != nil {
		return domain.ImportLog{}, err
	}
	current, err := store.ImportLogs.Get(ctx, id)
	if err != nil {
		return domain.ImportLog{}, err
	}
	if !current.Status.CanTransition(domain.ImportStatusFailed) {
		return domain.ImportLog{}, domain.NewTransitionError(string(current.Status), string(domain.ImportStatusFailed),
			fmt.Sprintf("import %s is already %s", id, current.Status))
	}

	update := repository.ImportLogUpdate{
		ErrorSummary:  []string{reason},
		FailureReason: reason,
		Completed:     true,
	}
	return m.transitionIn(ctx, t, store, id, current.Status, domain.ImportStatusFailed, domain.AuditActionFail, update, map[string]any{
		"reason": reason,
	})
}

// Refine moves a completed log to partially_completed once any of its rows is rejected.
// Any other log is returned unchanged.
func (m *Manager) Refine(ctx context.Context, t tenant.Tenant, id uuid.UUID) (domain.ImportLog, error) {
	store, err := m.stores.Store(ctx, t)
	if err != nil {
		return domain.ImportLog{}, err
	}
	current, err := store.ImportLogs.Get(ctx, id)
	if err != nil {
		return domain.ImportLog{}, err
	}
	if current.Status != domain.ImportStatusCompleted {
		return current, nil
	}

	counts, err := store.Transactions.CountByStatus(ctx, id)
	if err != nil {
		return domain.ImportLog{}, err
	}
	if counts[domain.TransactionStatusRejected] == 0 {
		return current, nil
	}

	refined, err := m.transitionIn(ctx, t, store, id, domain.ImportStatusCompleted, domain.ImportStatusPartiallyCompleted, domain.AuditActionRefine, repository.ImportLogUpdate{}, map[string]any{
		"rejected": counts[domain.TransactionStatusRejected],
	})
	if errors.Is(err, domain.ErrInvalidStateTransition) {
		// a concurrent reject already refined it
		return store.ImportLogs.Get(ctx, id)
	}
	return refined, err
}

// Get returns one log.
func (m *Manager) Get(ctx context.Context, t tenant.Tenant, id uuid.UUID) (domain.ImportLog, error) {
	store, err := m.stores.Store(ctx, t)
	if err != nil {
		return domain.ImportLog{}, err
	}
	return store.ImportLogs.Get(ctx, id)
}

// List returns the most recent logs.
func (m *Manager) List(ctx context.Context, t tenant.Tenant, limit int) ([]domain.ImportLog, error) {
	store, err := m.stores.Store(ctx, t)
	if err != nil {
		return nil, err
	}
	return store.ImportLogs.List(ctx, limit)
}

// ListStuck returns logs that have been processing for longer than olderThan.
func (m *Manager) ListStuck(ctx context.Context, t tenant.Tenant, olderThan time.Duration) ([]domain.ImportLog, error) {
	store, err := m.stores.Store(ctx, t)
	if err != nil {
		return nil, err
	}
	return store.ImportLogs.ListByStatus(ctx, domain.ImportStatusProcessing, m.now().UTC().Add(-olderThan))
}

// Recover settles a log left in processing by an interrupted run. Staging is atomic, so
// either every row of the run is staged and the log completes from the staged counts, or
// nothing is and the log fails.
func (m *Manager) Recover(ctx context.Context, t tenant.Tenant, id uuid.UUID) (domain.ImportLog, error) {
	store, err := m.stores.Store(ctx, t)
	if err != nil {
		return domain.ImportLog{}, err
	}
	current, err := store.ImportLogs.Get(ctx, id)
	if err != nil {
		return domain.ImportLog{}, err
	}
	if current.Status != domain.ImportStatusProcessing {
		return domain.ImportLog{}, domain.NewTransitionError(string(current.Status), string(domain.ImportStatusCompleted),
			fmt.Sprintf("import %s is %s, only processing imports can be recovered", id, current.Status))
	}

	counts, err := store.Transactions.CountByLog(ctx, id)
	if err != nil {
		return domain.ImportLog{}, err
	}

	l := logger.FromContext(ctx).With().Str("tenant_id", t.ID).Str("import_id", id.String()).Logger()
	if counts.Total == 0 {
		// a live run may still stage its rows; the store refuses the failure if it has
		reason := "import interrupted before rows were staged"
		l.Warn().Msg("recovering import with nothing staged")
		return m.transitionIn(ctx, t, store, id, domain.ImportStatusProcessing, domain.ImportStatusFailed, domain.AuditActionFail, repository.ImportLogUpdate{
			ErrorSummary:         []string{reason},
			FailureReason:        reason,
			Completed:            true,
			RequireNothingStaged: true,
		}, map[string]any{
			"reason": reason,
		})
	}

	summary, err := m.stagedSummary(ctx, store, id)
	if err != nil {
		return domain.ImportLog{}, err
	}
	counters := domain.ImportCounters{TotalRows: counts.Total, ValidRows: counts.Valid, InvalidRows: counts.Invalid}
	update := repository.ImportLogUpdate{
		Counters:     &counters,
		ErrorSummary: summary,
		Completed:    true,
	}
	l.Info().Int("total_rows", counts.Total).Msg("recovering import from staged rows")
	return m.transitionIn(ctx, t, store, id, domain.ImportStatusProcessing, domain.ImportStatusCompleted, domain.AuditActionRecover, update, map[string]any{
		"total_rows":   counters.TotalRows,
		"valid_rows":   counters.ValidRows,
		"invalid_rows": counters.InvalidRows,
	})
}

// ReapStuck recovers every log stuck in processing for longer than olderThan.
func (m *Manager) ReapStuck(ctx context.Context, t tenant.Tenant, olderThan time.Duration) ([]domain.ImportLog, error) {
	stuck, err := m.ListStuck(ctx, t, olderThan)
	if err != nil {
		return nil, err
	}

	settled := make([]domain.ImportLog, 0, len(stuck))
	var errs []error
	for _, log := range stuck {
		recovered, err := m.Recover(ctx, t, log.ID)
		if err != nil {
			// finished on its own between the listing and now
			if errors.Is(err, domain.ErrInvalidStateTransition) {
				continue
			}
			errs = append(errs, fmt.Errorf("import %s: %w", log.ID, err))
			continue
		}
		settled = append(settled, recovered)
	}
	return settled, errors.Join(errs...)
}

// RowSummary formats one row's errors for error_summary.
func RowSummary(rowNumber int, errs []string) string {
	if len(errs) == 0 {
		return fmt.Sprintf("row %d: invalid", rowNumber)
	}
	return fmt.Sprintf("row %d: %s", rowNumber, strings.Join(errs, "; "))
}

func (m *Manager) stagedSummary(ctx context.Context, store repository.Store, id uuid.UUID) ([]string, error) {
	txs, err := store.Transactions.List(ctx, domain.TransactionFilter{ImportLogID: &id})
	if err != nil {
		return nil, err
	}
	summary := []string{}
	for _, tx := range txs {
		if tx.IsValid() {
			continue
		}
		summary = append(summary, RowSummary(tx.RowNumber, tx.ValidationErrors))
		if len(summary) == m.summaryLimit {
			break
		}
	}
	return summary, nil
}

func (m *Manager) capSummary(summary []string) []string {
	if summary == nil {
		return []string{}
	}
	if len(summary) > m.summaryLimit {
		return summary[:m.summaryLimit]
	}
	return summary
}

func (m *Manager) transition(ctx context.Context, t tenant.Tenant, id uuid.UUID, from, to domain.ImportStatus, action domain.AuditAction, update repository.ImportLogUpdate, detail map[string]any) (domain.ImportLog, error) {
	store, err := m.stores.Store(ctx, t)
	if err != nil {
		return domain.ImportLog{}, err
	}
	return m.transitionIn(ctx, t, store, id, from, to, action, update, detail)
}

func (m *Manager) transitionIn(ctx context.Context, t tenant.Tenant, store repository.Store, id uuid.UUID, from, to domain.ImportStatus, action domain.AuditAction, update repository.ImportLogUpdate, detail map[string]any) (domain.ImportLog, error) {
	if !from.CanTransition(to) {
		return domain.ImportLog{}, domain.NewTransitionError(string(from), string(to), "")
	}
	log, err := store.ImportLogs.Transition(ctx, id, from, to, update)
	if err != nil {
		return domain.ImportLog{}, err
	}

	l := logger.FromContext(ctx)
	l.Info().
		Str("tenant_id", t.ID).
		Str("import_id", id.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("import status changed")
	m.record(ctx, t, store, id, action, from, to, detail)
	return log, nil
}

func (m *Manager) record(ctx context.Context, t tenant.Tenant, store repository.Store, id uuid.UUID, action domain.AuditAction, from, to domain.ImportStatus, detail map[string]any) {
	event := domain.NewAuditEvent(t.ID, domain.AuditEntityImportLog, id, action, string(from), string(to))
	for k, v := range detail {
		event = event.WithDetail(k, v)
	}
	audit.Emit(ctx, event, store.Audit, m.recorder)
}
