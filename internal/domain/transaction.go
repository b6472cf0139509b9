package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionStatus is the approval state of a staged transaction.
type TransactionStatus string

const (
	TransactionStatusPending  TransactionStatus = "pending"
	TransactionStatusApproved TransactionStatus = "approved"
	TransactionStatusRejected TransactionStatus = "rejected"
)

// ValidationStatus tells whether a staged row passed validation.
type ValidationStatus string

const (
	ValidationStatusValid   ValidationStatus = "valid"
	ValidationStatusInvalid ValidationStatus = "invalid"
)

// Transaction is one staged row of an import.
type Transaction struct {
	ID                 uuid.UUID         `json:"id"`
	ImportLogID        uuid.UUID         `json:"import_log_id"`
	RowNumber          int               `json:"row_number"`
	TransactionDate    *time.Time        `json:"transaction_date,omitempty"`
	Description        string            `json:"description"`
	Amount             *decimal.Decimal  `json:"amount,omitempty"`
	AccountCode        string            `json:"account_code"`
	VendorCustomer     string            `json:"vendor_customer,omitempty"`
	Department         string            `json:"department,omitempty"`
	Category           string            `json:"category,omitempty"`
	DocumentNumber     string            `json:"document_number,omitempty"`
	ReferenceNumber    string            `json:"reference_number,omitempty"`
	Status             TransactionStatus `json:"status"`
	ValidationStatus   ValidationStatus  `json:"validation_status"`
	ValidationErrors   []string          `json:"validation_errors"`
	ValidationWarnings []string          `json:"validation_warnings"`
	RejectionReason    string            `json:"rejection_reason,omitempty"`
	Raw                map[string]string `json:"raw,omitempty"`
	PostedAt           *time.Time        `json:"posted_at,omitempty"`
	FirstPostedAt      *time.Time        `json:"first_posted_at,omitempty"`
	PostedStatementID  *uuid.UUID        `json:"posted_statement_id,omitempty"`
	PostedLineItemID   *uuid.UUID        `json:"posted_line_item_id,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// IsValid reports whether the row passed validation.
func (t Transaction) IsValid() bool {
	return t.ValidationStatus == ValidationStatusValid
}

// IsPosted reports whether the transaction currently contributes to a line item.
func (t Transaction) IsPosted() bool {
	return t.PostedAt != nil
}

// AmountOrZero returns the amount, or zero when the row had none.
func (t Transaction) AmountOrZero() decimal.Decimal {
	if t.Amount == nil {
		return decimal.Zero
	}
	return *t.Amount
}

// TransactionFilter narrows the staging read contracts.
type TransactionFilter struct {
	ImportLogID *uuid.UUID
	Status      *TransactionStatus
	Limit       int
}

// TransactionAmendment carries the editable fields of a pending transaction.
type TransactionAmendment struct {
	AccountCode    *string `json:"account_code,omitempty"`
	Description    *string `json:"description,omitempty"`
	VendorCustomer *string `json:"vendor_customer,omitempty"`
	Department     *string `json:"department,omitempty"`
	Category       *string `json:"category,omitempty"`
}

// Apply copies the set fields onto t.
func (a TransactionAmendment) Apply(t *Transaction) {
	if a.AccountCode != nil {
		t.AccountCode = *a.AccountCode
	}
	if a.Description != nil {
		t.Description = *a.Description
	}
	if a.VendorCustomer != nil {
		t.VendorCustomer = *a.VendorCustomer
	}
	if a.Department != nil {
		t.Department = *a.Department
	}
	if a.Category != nil {
		t.Category = *a.Category
	}
}

// StatusCounts are the per-status row counts returned by staging.
type StatusCounts struct {
	Total   int
	Valid   int
	Invalid int
}
