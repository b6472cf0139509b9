package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/rpattn/ledgerflow/internal/domain"
	"github.com/rpattn/ledgerflow/internal/repository"

	"github.com/google/uuid"
)

// AccountRepository answers chart-of-accounts lookups from memory.
type AccountRepository struct {
	data *TenantData
}

var _ repository.AccountRepository = (*AccountRepository)(nil)

func (r *AccountRepository) ExistingCodes(_ context.Context, codes []string) (map[string]bool, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	if r.data.accountsErr != nil {
		return nil, fmt.Errorf("failed to look up account codes: %w", r.data.accountsErr)
	}
	found := make(map[string]bool, len(codes))
	for _, code := range codes {
		if r.data.accounts[code] {
			found[code] = true
		}
	}
	return found, nil
}

// AuditRepository keeps audit events in memory.
type AuditRepository struct {
	data *TenantData
}

var _ repository.AuditRepository = (*AuditRepository)(nil)

func (r *AuditRepository) Record(_ context.Context, event domain.AuditEvent) error {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	r.data.audit = append(r.data.audit, event)
	return nil
}

func (r *AuditRepository) List(_ context.Context, entityType string, entityID uuid.UUID) ([]domain.AuditEvent, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	events := []domain.AuditEvent{}
	for _, event := range r.data.audit {
		if event.EntityType == entityType && event.EntityID == entityID {
			events = append(events, event)
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].OccurredAt.Before(events[j].OccurredAt) })
	return events, nil
}
