package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rpattn/ledgerflow/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository wires the audit event table.
func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

func (r *auditRepository) Record(ctx context.Context, event domain.AuditEvent) error {
	if r.pool == nil {
		return fmt.Errorf("audit repository not initialized")
	}

	detail, err := jsonObject(event.Detail)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(
		ctx,
		`INSERT INTO audit_events (id, tenant_id, entity_type, entity_id, action, from_status, to_status, detail, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		event.ID,
		event.TenantID,
		event.EntityType,
		event.EntityID,
		string(event.Action),
		event.FromStatus,
		event.ToStatus,
		detail,
		event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

func (r *auditRepository) List(ctx context.Context, entityType string, entityID uuid.UUID) ([]domain.AuditEvent, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("audit repository not initialized")
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, tenant_id, entity_type, entity_id, action, from_status, to_status, detail, occurred_at
		 FROM audit_events
		 WHERE entity_type = $1
		   AND entity_id = $2
		 ORDER BY occurred_at`,
		entityType,
		entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	events := []domain.AuditEvent{}
	for rows.Next() {
		var (
			event  domain.AuditEvent
			action string
			detail []byte
		)
		if err := rows.Scan(
			&event.ID,
			&event.TenantID,
			&event.EntityType,
			&event.EntityID,
			&action,
			&event.FromStatus,
			&event.ToStatus,
			&detail,
			&event.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		event.Action = domain.AuditAction(action)
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &event.Detail); err != nil {
				return nil, fmt.Errorf("failed to decode audit detail: %w", err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit events: %w", err)
	}
	return events, nil
}
