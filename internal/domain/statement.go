package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineItem is a named balance inside a financial statement.
type LineItem struct {
	ID          uuid.UUID       `json:"id"`
	StatementID uuid.UUID       `json:"statement_id"`
	LineCode    string          `json:"line_code"`
	LineName    string          `json:"line_name"`
	Amount      decimal.Decimal `json:"amount"`
}

// Statement is the period container of line items.
type Statement struct {
	ID          uuid.UUID `json:"id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

// Contains reports whether d falls inside the statement period, both ends inclusive.
func (s Statement) Contains(d time.Time) bool {
	day := truncateDay(d)
	return !day.Before(truncateDay(s.PeriodStart)) && !day.After(truncateDay(s.PeriodEnd))
}

// PostingTarget identifies the line item a transaction posts into.
type PostingTarget struct {
	StatementID uuid.UUID
	LineItemID  uuid.UUID
}

// AccountPostingSummary aggregates the transactions posted into one statement for one account.
type AccountPostingSummary struct {
	AccountCode      string          `json:"account_code"`
	TransactionCount int             `json:"transaction_count"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	EarliestDate     *time.Time      `json:"earliest_date,omitempty"`
	LatestDate       *time.Time      `json:"latest_date,omitempty"`
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
