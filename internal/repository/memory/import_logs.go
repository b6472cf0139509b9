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

// ImportLogRepository implements repository.ImportLogRepository in memory.
type ImportLogRepository struct {
	data *TenantData
}

var _ repository.ImportLogRepository = (*ImportLogRepository)(nil)

func (r *ImportLogRepository) Create(_ context.Context, log domain.ImportLog) (domain.ImportLog, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	if _, exists := r.data.logs[log.ID]; exists {
		return domain.ImportLog{}, fmt.Errorf("import log %s already exists", log.ID)
	}
	if log.ErrorSummary == nil {
		log.ErrorSummary = []string{}
	}
	stored := cloneLog(log)
	r.data.logs[log.ID] = &stored
	return cloneLog(stored), nil
}

func (r *ImportLogRepository) Get(_ context.Context, id uuid.UUID) (domain.ImportLog, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	log, ok := r.data.logs[id]
	if !ok {
		return domain.ImportLog{}, fmt.Errorf("import log %s: %w", id, domain.ErrNotFound)
	}
	return cloneLog(*log), nil
}

func (r *ImportLogRepository) List(_ context.Context, limit int) ([]domain.ImportLog, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	logs := make([]domain.ImportLog, 0, len(r.data.logs))
	for _, log := range r.data.logs {
		logs = append(logs, cloneLog(*log))
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].StartedAt.After(logs[j].StartedAt) })
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (r *ImportLogRepository) ListByStatus(_ context.Context, status domain.ImportStatus, startedBefore time.Time) ([]domain.ImportLog, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	logs := []domain.ImportLog{}
	for _, log := range r.data.logs {
		if log.Status == status && log.StartedAt.Before(startedBefore) {
			logs = append(logs, cloneLog(*log))
		}
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].StartedAt.Before(logs[j].StartedAt) })
	return logs, nil
}

func (r *ImportLogRepository) Transition(_ context.Context, id uuid.UUID, from, to domain.ImportStatus, update repository.ImportLogUpdate) (domain.ImportLog, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	log, ok := r.data.logs[id]
	if !ok {
		return domain.ImportLog{}, fmt.Errorf("import log %s: %w", id, domain.ErrNotFound)
	}
	if log.Status != from {
		return domain.ImportLog{}, domain.NewTransitionError(string(log.Status), string(to), "")
	}
	if update.RequireNothingStaged {
		for _, t := range r.data.transactions {
			if t.ImportLogID == id {
				return domain.ImportLog{}, domain.NewTransitionError(string(log.Status), string(to), "rows were staged")
			}
		}
	}

	now := time.Now().UTC()
	log.Status = to
	if update.Counters != nil {
		log.TotalRows = update.Counters.TotalRows
		log.ValidRows = update.Counters.ValidRows
		log.InvalidRows = update.Counters.InvalidRows
	}
	if update.ErrorSummary != nil {
		log.ErrorSummary = append([]string{}, update.ErrorSummary...)
	}
	if update.FailureReason != "" {
		log.FailureReason = update.FailureReason
	}
	if update.Completed {
		log.CompletedAt = &now
	}
	log.UpdatedAt = now
	return cloneLog(*log), nil
}
