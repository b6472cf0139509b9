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

// MappingRuleRepository keeps a tenant's mapping rules in memory.
type MappingRuleRepository struct {
	data *TenantData
}

var _ repository.MappingRuleRepository = (*MappingRuleRepository)(nil)

func (r *MappingRuleRepository) List(_ context.Context, includeInactive bool) ([]domain.MappingRule, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	rules := []domain.MappingRule{}
	for _, rule := range r.data.rules {
		if rule.Active || includeInactive {
			rules = append(rules, cloneRule(*rule))
		}
	}
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].CreatedAt.After(rules[j].CreatedAt)
	})
	return rules, nil
}

func (r *MappingRuleRepository) Get(_ context.Context, id uuid.UUID) (domain.MappingRule, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	rule, ok := r.data.rules[id]
	if !ok {
		return domain.MappingRule{}, fmt.Errorf("mapping rule %s: %w", id, domain.ErrNotFound)
	}
	return cloneRule(*rule), nil
}

func (r *MappingRuleRepository) Create(_ context.Context, rule domain.MappingRule) (domain.MappingRule, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	if _, exists := r.data.rules[rule.ID]; exists {
		return domain.MappingRule{}, fmt.Errorf("mapping rule %s already exists", rule.ID)
	}
	stored := cloneRule(rule)
	r.data.rules[rule.ID] = &stored
	return cloneRule(stored), nil
}

func (r *MappingRuleRepository) Deactivate(_ context.Context, id uuid.UUID) error {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	rule, ok := r.data.rules[id]
	if !ok {
		return fmt.Errorf("mapping rule %s: %w", id, domain.ErrNotFound)
	}
	rule.Active = false
	rule.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MappingRuleRepository) RecordUse(_ context.Context, id uuid.UUID, at time.Time) (domain.MappingRule, error) {
	r.data.mu.Lock()
	defer r.data.mu.Unlock()

	rule, ok := r.data.rules[id]
	if !ok {
		return domain.MappingRule{}, fmt.Errorf("mapping rule %s: %w", id, domain.ErrNotFound)
	}
	rule.UsageCount++
	used := at
	rule.LastUsedAt = &used
	return cloneRule(*rule), nil
}

func cloneRule(rule domain.MappingRule) domain.MappingRule {
	c := rule.Conditions
	c.DescriptionContains = append([]string(nil), c.DescriptionContains...)
	c.VendorContains = append([]string(nil), c.VendorContains...)
	if c.AmountRange != nil {
		bounds := *c.AmountRange
		c.AmountRange = &bounds
	}
	rule.Conditions = c
	if rule.LastUsedAt != nil {
		v := *rule.LastUsedAt
		rule.LastUsedAt = &v
	}
	return rule
}
