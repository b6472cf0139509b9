package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rpattn/ledgerflow/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const mappingRuleColumns = `id, name, priority, conditions, result, active, usage_count, last_used_at, created_at, updated_at`

type mappingRuleRepository struct {
	pool *pgxpool.Pool
}

// NewMappingRuleRepository wires the tenant's mapping rule table.
func NewMappingRuleRepository(pool *pgxpool.Pool) MappingRuleRepository {
	return &mappingRuleRepository{pool: pool}
}

func (r *mappingRuleRepository) List(ctx context.Context, includeInactive bool) ([]domain.MappingRule, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("mapping rule repository not initialized")
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT `+mappingRuleColumns+` FROM mapping_rules
		 WHERE active OR $1
		 ORDER BY priority DESC, created_at DESC`,
		includeInactive,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list mapping rules: %w", err)
	}
	defer rows.Close()

	rules := []domain.MappingRule{}
	for rows.Next() {
		rule, err := scanMappingRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mapping rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate mapping rules: %w", err)
	}
	return rules, nil
}

func (r *mappingRuleRepository) Get(ctx context.Context, id uuid.UUID) (domain.MappingRule, error) {
	if r.pool == nil {
		return domain.MappingRule{}, fmt.Errorf("mapping rule repository not initialized")
	}

	rule, err := scanMappingRule(r.pool.QueryRow(ctx, `SELECT `+mappingRuleColumns+` FROM mapping_rules WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return domain.MappingRule{}, fmt.Errorf("mapping rule %s: %w", id, domain.ErrNotFound)
		}
		return domain.MappingRule{}, fmt.Errorf("failed to get mapping rule: %w", err)
	}
	return rule, nil
}

func (r *mappingRuleRepository) Create(ctx context.Context, rule domain.MappingRule) (domain.MappingRule, error) {
	if r.pool == nil {
		return domain.MappingRule{}, fmt.Errorf("mapping rule repository not initialized")
	}

	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return domain.MappingRule{}, fmt.Errorf("failed to encode rule conditions: %w", err)
	}
	result, err := json.Marshal(rule.Result)
	if err != nil {
		return domain.MappingRule{}, fmt.Errorf("failed to encode rule result: %w", err)
	}

	created, err := scanMappingRule(r.pool.QueryRow(
		ctx,
		`INSERT INTO mapping_rules (id, name, priority, conditions, result, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		 RETURNING `+mappingRuleColumns,
		rule.ID,
		rule.Name,
		int32(rule.Priority),
		conditions,
		result,
		rule.Active,
		rule.CreatedAt,
	))
	if err != nil {
		return domain.MappingRule{}, fmt.Errorf("failed to create mapping rule: %w", err)
	}
	return created, nil
}

func (r *mappingRuleRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	if r.pool == nil {
		return fmt.Errorf("mapping rule repository not initialized")
	}

	tag, err := r.pool.Exec(ctx, `UPDATE mapping_rules SET active = FALSE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate mapping rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mapping rule %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *mappingRuleRepository) RecordUse(ctx context.Context, id uuid.UUID, at time.Time) (domain.MappingRule, error) {
	if r.pool == nil {
		return domain.MappingRule{}, fmt.Errorf("mapping rule repository not initialized")
	}

	rule, err := scanMappingRule(r.pool.QueryRow(
		ctx,
		`UPDATE mapping_rules
		 SET usage_count = usage_count + 1,
		     last_used_at = $2,
		     updated_at = now()
		 WHERE id = $1
		 RETURNING `+mappingRuleColumns,
		id,
		at,
	))
	if err != nil {
		if isNoRows(err) {
			return domain.MappingRule{}, fmt.Errorf("mapping rule %s: %w", id, domain.ErrNotFound)
		}
		return domain.MappingRule{}, fmt.Errorf("failed to record mapping rule use: %w", err)
	}
	return rule, nil
}

func scanMappingRule(row pgx.Row) (domain.MappingRule, error) {
	var (
		rule       domain.MappingRule
		priority   int32
		usage      int32
		conditions []byte
		result     []byte
		lastUsed   pgtype.Timestamptz
	)
	if err := row.Scan(
		&rule.ID,
		&rule.Name,
		&priority,
		&conditions,
		&result,
		&rule.Active,
		&usage,
		&lastUsed,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return domain.MappingRule{}, err
	}
	if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
		return domain.MappingRule{}, fmt.Errorf("failed to decode rule conditions: %w", err)
	}
	if err := json.Unmarshal(result, &rule.Result); err != nil {
		return domain.MappingRule{}, fmt.Errorf("failed to decode rule result: %w", err)
	}
	rule.Priority = int(priority)
	rule.UsageCount = int(usage)
	if lastUsed.Valid {
		t := lastUsed.Time
		rule.LastUsedAt = &t
	}
	return rule, nil
}
