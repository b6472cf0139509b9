package domain

import (
	"errors"

	"github.com/google/uuid"
)

// Outcome values of a per-id result.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// ItemResult is the per-id outcome of a batch operation. One id failing never affects another.
type ItemResult struct {
	ID     uuid.UUID         `json:"id"`
	Status TransactionStatus `json:"status,omitempty"`
	// Outcome is "success" or "failure".
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// Succeeded reports whether the id succeeded.
func (r ItemResult) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}

// SuccessResult builds a success for id in status.
func SuccessResult(id uuid.UUID, status TransactionStatus) ItemResult {
	return ItemResult{ID: id, Status: status, Outcome: OutcomeSuccess}
}

// FailureResult builds a failure for id from err.
func FailureResult(id uuid.UUID, status TransactionStatus, err error) ItemResult {
	return ItemResult{ID: id, Status: status, Outcome: OutcomeFailure, Error: err.Error(), Kind: ErrorKind(err)}
}

// ErrorKind names the taxonomy class of err, or "" when it is unclassified.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrPostingConflict):
		return "posting_conflict"
	case errors.Is(err, ErrInvalidStateTransition):
		return "invalid_state_transition"
	case errors.Is(err, ErrPostingTargetNotFound):
		return "posting_target_not_found"
	case errors.Is(err, ErrParse):
		return "parse_error"
	case errors.Is(err, ErrMapping):
		return "mapping_error"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	default:
		return ""
	}
}
