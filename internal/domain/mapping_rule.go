package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RuleConditions select the staged transactions a mapping rule applies to. Every condition
// that is set must hold; a keyword list holds when any keyword occurs, ignoring case.
type RuleConditions struct {
	DescriptionContains []string     `json:"description_contains,omitempty"`
	VendorContains      []string     `json:"vendor_contains,omitempty"`
	AmountRange         *AmountRange `json:"amount_range,omitempty"`
}

// AmountRange is an inclusive bound on a transaction amount. A nil end is open.
type AmountRange struct {
	Min *decimal.Decimal `json:"min,omitempty"`
	Max *decimal.Decimal `json:"max,omitempty"`
}

// RuleResult holds the fields a matching rule fills in.
type RuleResult struct {
	AccountCode string `json:"account_code,omitempty"`
	Category    string `json:"category,omitempty"`
	Department  string `json:"department,omitempty"`
}

// MappingRule fills classification fields of staged transactions from their description,
// vendor or amount. Rules are tried by descending priority.
type MappingRule struct {
	ID         uuid.UUID      `json:"id"`
	Name       string         `json:"name"`
	Priority   int            `json:"priority"`
	Conditions RuleConditions `json:"conditions"`
	Result     RuleResult     `json:"result"`
	Active     bool           `json:"active"`
	UsageCount int            `json:"usage_count"`
	LastUsedAt *time.Time     `json:"last_used_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// NewMappingRule builds an active rule with a fresh id.
func NewMappingRule(name string, priority int, conditions RuleConditions, result RuleResult) MappingRule {
	now := time.Now().UTC()
	return MappingRule{
		ID:         uuid.New(),
		Name:       strings.TrimSpace(name),
		Priority:   priority,
		Conditions: conditions,
		Result:     result,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Validate checks the rule can match something and changes something.
func (r MappingRule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule name is required")
	}
	c := r.Conditions
	if len(nonBlank(c.DescriptionContains)) == 0 && len(nonBlank(c.VendorContains)) == 0 && c.AmountRange == nil {
		return fmt.Errorf("rule %s has no conditions", r.Name)
	}
	if c.AmountRange != nil {
		if c.AmountRange.Min == nil && c.AmountRange.Max == nil {
			return fmt.Errorf("rule %s: amount_range needs min or max", r.Name)
		}
		if c.AmountRange.Min != nil && c.AmountRange.Max != nil && c.AmountRange.Min.GreaterThan(*c.AmountRange.Max) {
			return fmt.Errorf("rule %s: amount_range min is above max", r.Name)
		}
	}
	if r.Result == (RuleResult{}) {
		return fmt.Errorf("rule %s sets no fields", r.Name)
	}
	return nil
}

// Matches reports whether every condition of the rule holds for t.
func (r MappingRule) Matches(t Transaction) bool {
	c := r.Conditions
	if len(nonBlank(c.DescriptionContains)) > 0 && !containsAny(t.Description, c.DescriptionContains) {
		return false
	}
	if len(nonBlank(c.VendorContains)) > 0 && !containsAny(t.VendorCustomer, c.VendorContains) {
		return false
	}
	if c.AmountRange != nil {
		if t.Amount == nil {
			return false
		}
		if c.AmountRange.Min != nil && t.Amount.LessThan(*c.AmountRange.Min) {
			return false
		}
		if c.AmountRange.Max != nil && t.Amount.GreaterThan(*c.AmountRange.Max) {
			return false
		}
	}
	return true
}

// Amendment is the edit a matching rule makes.
func (r MappingRule) Amendment() TransactionAmendment {
	var a TransactionAmendment
	if r.Result.AccountCode != "" {
		code := r.Result.AccountCode
		a.AccountCode = &code
	}
	if r.Result.Category != "" {
		category := r.Result.Category
		a.Category = &category
	}
	if r.Result.Department != "" {
		department := r.Result.Department
		a.Department = &department
	}
	return a
}

// FirstMatch returns the first rule in rules that matches t. rules must already be in
// priority order.
func FirstMatch(rules []MappingRule, t Transaction) (MappingRule, bool) {
	for _, rule := range rules {
		if rule.Active && rule.Matches(t) {
			return rule, true
		}
	}
	return MappingRule{}, false
}

func containsAny(value string, keywords []string) bool {
	value = strings.ToLower(value)
	for _, keyword := range nonBlank(keywords) {
		if strings.Contains(value, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

func nonBlank(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, strings.TrimSpace(v))
		}
	}
	return out
}
