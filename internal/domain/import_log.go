package domain

import (
	"time"

	"github.com/google/uuid"
)

// ImportStatus is the lifecycle state of one import run.
type ImportStatus string

const (
	ImportStatusPending            ImportStatus = "pending"
	ImportStatusProcessing         ImportStatus = "processing"
	ImportStatusCompleted          ImportStatus = "completed"
	ImportStatusFailed             ImportStatus = "failed"
	ImportStatusPartiallyCompleted ImportStatus = "partially_completed"
)

// Terminal reports whether the counters of a log in this status are frozen.
func (s ImportStatus) Terminal() bool {
	switch s {
	case ImportStatusCompleted, ImportStatusFailed, ImportStatusPartiallyCompleted:
		return true
	}
	return false
}

// importTransitions lists the legal status changes of an ImportLog.
var importTransitions = map[ImportStatus][]ImportStatus{
	ImportStatusPending:    {ImportStatusProcessing, ImportStatusFailed},
	ImportStatusProcessing: {ImportStatusCompleted, ImportStatusFailed},
	ImportStatusCompleted:  {ImportStatusPartiallyCompleted},
}

// CanTransition reports whether from -> to is allowed.
func (s ImportStatus) CanTransition(to ImportStatus) bool {
	for _, next := range importTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// ImportCounters are the aggregate row counts of one import.
type ImportCounters struct {
	TotalRows   int `json:"total_rows"`
	ValidRows   int `json:"valid_rows"`
	InvalidRows int `json:"invalid_rows"`
}

// Balanced reports whether valid + invalid == total.
func (c ImportCounters) Balanced() bool {
	return c.ValidRows+c.InvalidRows == c.TotalRows
}

// ImportLog is the record of one file import run.
type ImportLog struct {
	ID            uuid.UUID    `json:"id"`
	TemplateID    uuid.UUID    `json:"template_id"`
	FileName      string       `json:"file_name"`
	Status        ImportStatus `json:"status"`
	TotalRows     int          `json:"total_rows"`
	ValidRows     int          `json:"valid_rows"`
	InvalidRows   int          `json:"invalid_rows"`
	ImportedRows  int          `json:"imported_rows"`
	ErrorSummary  []string     `json:"error_summary"`
	FailureReason string       `json:"failure_reason,omitempty"`
	StartedAt     time.Time    `json:"started_at"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// NewImportLog creates a pending log for an upload.
func NewImportLog(templateID uuid.UUID, fileName string) ImportLog {
	now := time.Now().UTC()
	return ImportLog{
		ID:           uuid.New(),
		TemplateID:   templateID,
		FileName:     fileName,
		Status:       ImportStatusPending,
		ErrorSummary: []string{},
		StartedAt:    now,
		UpdatedAt:    now,
	}
}

// Counters returns the log's aggregate counts.
func (l ImportLog) Counters() ImportCounters {
	return ImportCounters{TotalRows: l.TotalRows, ValidRows: l.ValidRows, InvalidRows: l.InvalidRows}
}
