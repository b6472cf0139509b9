// Package rules classifies staged transactions with a tenant's prioritised mapping rules.
package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/rpattn/ledgerflow/internal/domain"
	"github.com/rpattn/ledgerflow/internal/logger"
	"github.com/rpattn/ledgerflow/internal/repository"
	"github.com/rpattn/ledgerflow/internal/tenant"

	"github.com/google/uuid"
)

// Amender edits a pending transaction and re-validates it. approval.Service implements it.
type Amender interface {
	Amend(ctx context.Context, t tenant.Tenant, id uuid.UUID, amendment domain.TransactionAmendment) (domain.Transaction, error)
}

// Service manages mapping rules and applies them to staged transactions.
type Service struct {
	stores  repository.StoreProvider
	amender Amender
	now     func() time.Time
}

// NewService creates a rule service. Edits go through amender so they are validated and
// audited like manual amendments.
func NewService(stores repository.StoreProvider, amender Amender) *Service {
	return &Service{stores: stores, amender: amender, now: time.Now}
}

// RuleInput is the payload accepted when creating a rule.
type RuleInput struct {
	Name       string                `json:"name"`
	Priority   int                   `json:"priority"`
	Conditions domain.RuleConditions `json:"conditions"`
	Result     domain.RuleResult     `json:"result"`
}

// Application is the outcome of applying the rules to one transaction.
type Application struct {
	TransactionID uuid.UUID           `json:"transaction_id"`
	Matched       bool                `json:"matched"`
	Rule          *domain.MappingRule `json:"rule,omitempty"`
	Applied       domain.RuleResult   `json:"applied"`
	Transaction   domain.Transaction  `json:"transaction"`
}

// List returns the tenant's rules in the order they are tried.
func (s *Service) List(ctx context.Context, t tenant.Tenant, includeInactive bool) ([]domain.MappingRule, error) {
	store, err := s.stores.Store(ctx, t)
	if err != nil {
		return nil, err
	}
	return store.Rules.List(ctx, includeInactive)
}

// Get returns one rule.
func (s *Service) Get(ctx context.Context, t tenant.Tenant, id uuid.UUID) (domain.MappingRule, error) {
	store, err := s.stores.Store(ctx, t)
	if err != nil {
		return domain.MappingRule{}, err
	}
	return store.Rules.Get(ctx, id)
}

// Create validates and stores a new active rule.
func (s *Service) Create(ctx context.Context, t tenant.Tenant, in RuleInput) (domain.MappingRule, error) {
	rule := domain.NewMappingRule(in.Name, in.Priority, in.Conditions, in.Result)
	if err := rule.Validate(); err != nil {
		return domain.MappingRule{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	store, err := s.stores.Store(ctx, t)
	if err != nil {
		return domain.MappingRule{}, err
	}

	created, err := store.Rules.Create(ctx, rule)
	if err != nil {
		return domain.MappingRule{}, err
	}
	l := logger.FromContext(ctx)
	l.Info().
		Str("tenant_id", t.ID).
		Str("rule_id", created.ID.String()).
		Int("priority", created.Priority).
		Msg("mapping rule created")
	return created, nil
}

// Deactivate stops a rule from matching. Its usage history is kept.
func (s *Service) Deactivate(ctx context.Context, t tenant.Tenant, id uuid.UUID) error {
	store, err := s.stores.Store(ctx, t)
	if err != nil {
		return err
	}
	return store.Rules.Deactivate(ctx, id)
}

// Apply amends the transaction with the first active rule that matches it and counts the
// use. No match leaves the transaction unchanged.
func (s *Service) Apply(ctx context.Context, t tenant.Tenant, txID uuid.UUID) (Application, error) {
	store, err := s.stores.Store(ctx, t)
	if err != nil {
		return Application{}, err
	}
	tx, err := store.Transactions.Get(ctx, txID)
	if err != nil {
		return Application{}, err
	}
	rules, err := store.Rules.List(ctx, false)
	if err != nil {
		return Application{}, err
	}

	rule, ok := domain.FirstMatch(rules, tx)
	if !ok {
		return Application{TransactionID: txID, Transaction: tx}, nil
	}

	amended, err := s.amender.Amend(ctx, t, txID, rule.Amendment())
	if err != nil {
		return Application{}, fmt.Errorf("rule %s: %w", rule.Name, err)
	}
	used, err := store.Rules.RecordUse(ctx, rule.ID, s.now().UTC())
	if err != nil {
		return Application{}, err
	}

	l := logger.FromContext(ctx)
	l.Info().
		Str("tenant_id", t.ID).
		Str("transaction_id", txID.String()).
		Str("rule", used.Name).
		Int("usage_count", used.UsageCount).
		Msg("mapping rule applied")
	return Application{
		TransactionID: txID,
		Matched:       true,
		Rule:          &used,
		Applied:       used.Result,
		Transaction:   amended,
	}, nil
}
