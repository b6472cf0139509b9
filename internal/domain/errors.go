package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrParse marks a file that could not be turned into rows. It aborts the import.
	ErrParse = errors.New("parse error")
	// ErrMapping marks a template column that could not be mapped for a row.
	ErrMapping = errors.New("mapping error")
	// ErrValidation marks a business rule failure on a row.
	ErrValidation = errors.New("validation error")
	// ErrPostingConflict is returned when a transaction has already been posted.
	ErrPostingConflict = errors.New("posting conflict")
	// ErrInvalidStateTransition is returned when a status change is not allowed.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrPostingTargetNotFound is returned when no statement line item matches a posting.
	ErrPostingTargetNotFound = errors.New("posting target not found")
	// ErrNotFound is returned by repositories when a record does not exist.
	ErrNotFound = errors.New("not found")
)

// ParseError describes why a file produced no usable rows.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error: %s: %v", e.Reason, e.Err)
	}
	return "parse error: " + e.Reason
}

func (e *ParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrParse, e.Err}
	}
	return []error{ErrParse}
}

// NewParseError builds a ParseError with an optional cause.
func NewParseError(reason string, err error) *ParseError {
	return &ParseError{Reason: reason, Err: err}
}

// MappingError records one field of one row that the template could not fill.
type MappingError struct {
	Field  string
	Column string
	Reason string
}

func (e MappingError) Error() string {
	if e.Column != "" && e.Column != e.Field {
		return fmt.Sprintf("%s %s (column %q)", e.Field, e.Reason, e.Column)
	}
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e MappingError) Unwrap() error { return ErrMapping }

// TransitionError explains a rejected status change for a single record.
type TransitionError struct {
	From   string
	To     string
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("cannot move from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidStateTransition }

// NewTransitionError builds a TransitionError.
func NewTransitionError(from, to, reason string) *TransitionError {
	return &TransitionError{From: from, To: to, Reason: reason}
}
