package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ValueType is the coercion applied to a mapped column.
type ValueType string

const (
	ValueTypeDate   ValueType = "date"
	ValueTypeNumber ValueType = "number"
	ValueTypeString ValueType = "string"
)

// FileFormat is the declared format of an uploaded file.
type FileFormat string

const (
	FileFormatCSV   FileFormat = "csv"
	FileFormatExcel FileFormat = "excel"
)

// Source types shipped with the default template seed.
const (
	SourceQuickBooks     = "quickbooks"
	SourceXero           = "xero"
	SourceThaiAccounting = "thai_accounting"
	SourceBankStatement  = "bank_statement"
	SourceJournal        = "journal"
	SourceCustom         = "custom"
)

// Target fields a mapping rule may write to.
const (
	FieldTransactionDate = "transaction_date"
	FieldDescription     = "description"
	FieldAmount          = "amount"
	FieldDebit           = "debit"
	FieldCredit          = "credit"
	FieldAccountCode     = "account_code"
	FieldVendorCustomer  = "vendor_customer"
	FieldDepartment      = "department"
	FieldCategory        = "category"
	FieldDocumentNumber  = "document_number"
	FieldReferenceNumber = "reference_number"
)

var targetTypes = map[string]ValueType{
	FieldTransactionDate: ValueTypeDate,
	FieldDescription:     ValueTypeString,
	FieldAmount:          ValueTypeNumber,
	FieldDebit:           ValueTypeNumber,
	FieldCredit:          ValueTypeNumber,
	FieldAccountCode:     ValueTypeString,
	FieldVendorCustomer:  ValueTypeString,
	FieldDepartment:      ValueTypeString,
	FieldCategory:        ValueTypeString,
	FieldDocumentNumber:  ValueTypeString,
	FieldReferenceNumber: ValueTypeString,
}

// ColumnMapping is one declarative rule of a template.
type ColumnMapping struct {
	Source   string    `json:"source" yaml:"source"`
	Target   string    `json:"target" yaml:"target"`
	Type     ValueType `json:"type" yaml:"type"`
	Required bool      `json:"required" yaml:"required"`
	Format   string    `json:"format,omitempty" yaml:"format,omitempty"`
}

// Template describes how one source file format maps onto transactions.
type Template struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	SourceType  string          `json:"source_type"`
	FileFormat  FileFormat      `json:"file_format"`
	Description string          `json:"description,omitempty"`
	Mappings    []ColumnMapping `json:"mappings"`
	Version     int             `json:"version"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewTemplate creates an active first version of a template.
func NewTemplate(name, sourceType string, format FileFormat, mappings []ColumnMapping) Template {
	now := time.Now().UTC()
	if format == "" {
		format = FileFormatCSV
	}
	if sourceType == "" {
		sourceType = SourceCustom
	}
	return Template{
		ID:         uuid.New(),
		Name:       name,
		SourceType: sourceType,
		FileFormat: format,
		Mappings:   mappings,
		Version:    1,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Validate checks the template is a usable mapping configuration.
func (t Template) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("template name is required")
	}
	switch t.FileFormat {
	case FileFormatCSV, FileFormatExcel:
	default:
		return fmt.Errorf("unsupported file format %q", t.FileFormat)
	}
	if len(t.Mappings) == 0 {
		return fmt.Errorf("template %s has no column mappings", t.Name)
	}

	seen := make(map[string]bool, len(t.Mappings))
	hasAmount := false
	for i, m := range t.Mappings {
		if strings.TrimSpace(m.Source) == "" {
			return fmt.Errorf("mapping %d: source column is required", i+1)
		}
		expected, ok := targetTypes[m.Target]
		if !ok {
			return fmt.Errorf("mapping %d: unknown target field %q", i+1, m.Target)
		}
		if m.Type == "" {
			m.Type = expected
		}
		if m.Type != ValueTypeDate && m.Type != ValueTypeNumber && m.Type != ValueTypeString {
			return fmt.Errorf("mapping %d: unknown value type %q", i+1, m.Type)
		}
		if seen[m.Target] {
			return fmt.Errorf("mapping %d: target %s mapped twice", i+1, m.Target)
		}
		seen[m.Target] = true
		if m.Target == FieldAmount || m.Target == FieldDebit || m.Target == FieldCredit {
			hasAmount = true
		}
	}
	if seen[FieldAmount] && (seen[FieldDebit] || seen[FieldCredit]) {
		return fmt.Errorf("template %s maps both amount and debit/credit", t.Name)
	}
	if !hasAmount {
		return fmt.Errorf("template %s does not map an amount", t.Name)
	}
	return nil
}

// SourceColumns returns the file headers the template expects, in rule order.
func (t Template) SourceColumns() []string {
	cols := make([]string, 0, len(t.Mappings))
	for _, m := range t.Mappings {
		cols = append(cols, m.Source)
	}
	return cols
}

// DefaultValueType returns the natural type of a target field.
func DefaultValueType(target string) (ValueType, bool) {
	vt, ok := targetTypes[target]
	return vt, ok
}
