package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction names a recorded status transition.
type AuditAction string

const (
	AuditActionCreate   AuditAction = "create"
	AuditActionValidate AuditAction = "validate"
	AuditActionApprove  AuditAction = "approve"
	AuditActionReject   AuditAction = "reject"
	AuditActionPost     AuditAction = "post"
	AuditActionUnpost   AuditAction = "unpost"
	AuditActionDelete   AuditAction = "delete"
	AuditActionAmend    AuditAction = "amend"
	AuditActionFail     AuditAction = "fail"
	AuditActionComplete AuditAction = "complete"
	AuditActionRefine   AuditAction = "refine"
	AuditActionRecover  AuditAction = "recover"
)

// Audit entity types.
const (
	AuditEntityImportLog   = "import_log"
	AuditEntityTransaction = "transaction"
)

// AuditEvent is the structured record handed to the external history recorder.
type AuditEvent struct {
	ID         uuid.UUID      `json:"id"`
	TenantID   string         `json:"tenant_id"`
	EntityType string         `json:"entity_type"`
	EntityID   uuid.UUID      `json:"entity_id"`
	Action     AuditAction    `json:"action"`
	FromStatus string         `json:"from_status,omitempty"`
	ToStatus   string         `json:"to_status,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// NewAuditEvent stamps a new event.
func NewAuditEvent(tenantID, entityType string, entityID uuid.UUID, action AuditAction, from, to string) AuditEvent {
	return AuditEvent{
		ID:         uuid.New(),
		TenantID:   tenantID,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		FromStatus: from,
		ToStatus:   to,
		OccurredAt: time.Now().UTC(),
	}
}

// WithDetail adds a detail entry and returns the event.
func (e AuditEvent) WithDetail(key string, value any) AuditEvent {
	if e.Detail == nil {
		e.Detail = make(map[string]any)
	}
	e.Detail[key] = value
	return e
}
