// Package mapping interprets a template's column rules against parsed rows.
package mapping

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/ledgerflow/internal/domain"

	"github.com/shopspring/decimal"
)

// Candidate is a row after mapping. Errors are collected, never raised.
type Candidate struct {
	RowNumber   int
	Transaction domain.Transaction
	Errors      []domain.MappingError
}

// HasFieldError reports whether mapping already failed for field.
func (c Candidate) HasFieldError(field string) bool {
	for _, err := range c.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

type rule struct {
	domain.ColumnMapping
	key string
}

// Engine applies one template to rows.
type Engine struct {
	template domain.Template
	rules    []rule
	split    bool
}

// NewEngine prepares the rules of tpl. Templates that fail validation are rejected.
func NewEngine(tpl domain.Template) (*Engine, error) {
	if err := tpl.Validate(); err != nil {
		return nil, fmt.Errorf("invalid template: %w", err)
	}

	engine := &Engine{template: tpl, rules: make([]rule, 0, len(tpl.Mappings))}
	for _, m := range tpl.Mappings {
		// date and amount targets always use their own coercer
		if natural, ok := domain.DefaultValueType(m.Target); ok && (m.Type == "" || natural != domain.ValueTypeString) {
			m.Type = natural
		}
		if m.Target == domain.FieldDebit || m.Target == domain.FieldCredit {
			engine.split = true
		}
		engine.rules = append(engine.rules, rule{ColumnMapping: m, key: normalizeHeader(m.Source)})
	}
	return engine, nil
}

// Template returns the template the engine was built from.
func (e *Engine) Template() domain.Template {
	return e.template
}

// MissingColumns lists required source columns absent from headers.
func (e *Engine) MissingColumns(headers []string) []string {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[normalizeHeader(h)] = true
	}
	var missing []string
	for _, r := range e.rules {
		if r.Required && !present[r.key] {
			missing = append(missing, r.Source)
		}
	}
	return missing
}

// Map turns one raw row into a candidate transaction.
func (e *Engine) Map(rowNumber int, row map[string]string) Candidate {
	candidate := Candidate{
		RowNumber: rowNumber,
		Transaction: domain.Transaction{
			RowNumber: rowNumber,
			Raw:       row,
		},
	}
	normalized := make(map[string]string, len(row))
	for k, v := range row {
		normalized[normalizeHeader(k)] = v
	}

	var debit, credit *decimal.Decimal
	for _, r := range e.rules {
		raw, ok := row[r.Source]
		if !ok {
			raw = normalized[r.key]
		}
		raw = strings.TrimSpace(raw)

		if raw == "" {
			if r.Required {
				candidate.Errors = append(candidate.Errors, domain.MappingError{Field: r.Target, Column: r.Source, Reason: "is required"})
			}
			continue
		}

		switch r.Type {
		case domain.ValueTypeDate:
			date, err := ParseDate(raw, r.Format)
			if err != nil {
				candidate.Errors = append(candidate.Errors, coercionError(r, "is not a valid date", raw, err))
				continue
			}
			assignDate(&candidate.Transaction, r.Target, date)
		case domain.ValueTypeNumber:
			amount, err := ParseAmount(raw)
			if err != nil {
				candidate.Errors = append(candidate.Errors, coercionError(r, "is not a valid number", raw, err))
				continue
			}
			switch r.Target {
			case domain.FieldDebit:
				debit = &amount
			case domain.FieldCredit:
				credit = &amount
			case domain.FieldAmount:
				candidate.Transaction.Amount = &amount
			default:
				assignString(&candidate.Transaction, r.Target, amount.String())
			}
		default:
			assignString(&candidate.Transaction, r.Target, raw)
		}
	}

	if e.split && (debit != nil || credit != nil) && !candidate.HasFieldError(domain.FieldDebit) && !candidate.HasFieldError(domain.FieldCredit) {
		amount := decimal.Zero
		if debit != nil {
			amount = amount.Add(*debit)
		}
		if credit != nil {
			amount = amount.Sub(*credit)
		}
		candidate.Transaction.Amount = &amount
	}
	return candidate
}

func coercionError(r rule, reason, raw string, err error) domain.MappingError {
	if errors.Is(err, errEmpty) {
		reason = "is required"
	} else {
		reason = fmt.Sprintf("%s: %q", reason, raw)
	}
	return domain.MappingError{Field: r.Target, Column: r.Source, Reason: reason}
}

func assignDate(tx *domain.Transaction, target string, value time.Time) {
	if target == domain.FieldTransactionDate {
		v := value
		tx.TransactionDate = &v
		return
	}
	assignString(tx, target, value.Format("2006-01-02"))
}

func assignString(tx *domain.Transaction, target, value string) {
	switch target {
	case domain.FieldDescription:
		tx.Description = value
	case domain.FieldAccountCode:
		tx.AccountCode = value
	case domain.FieldVendorCustomer:
		tx.VendorCustomer = value
	case domain.FieldDepartment:
		tx.Department = value
	case domain.FieldCategory:
		tx.Category = value
	case domain.FieldDocumentNumber:
		tx.DocumentNumber = value
	case domain.FieldReferenceNumber:
		tx.ReferenceNumber = value
	}
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.Join(strings.Fields(h), " "))
}
