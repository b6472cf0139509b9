package templates

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rpattn/ledgerflow/internal/domain"
	"github.com/rpattn/ledgerflow/internal/mapping"
)

// sampleRows holds two example rows per source type, keyed by target field.
var sampleRows = map[string][]map[string]string{
	domain.SourceThaiAccounting: {
		{domain.FieldDocumentNumber: "PV-001", domain.FieldDescription: "จ่ายค่าเช่า", domain.FieldAccountCode: "6200", domain.FieldDebit: "25000.00", domain.FieldReferenceNumber: "RENT-001"},
		{domain.FieldDocumentNumber: "RC-001", domain.FieldDescription: "รับชำระค่าบริการ", domain.FieldAccountCode: "4100", domain.FieldCredit: "150000.00", domain.FieldReferenceNumber: "INV-001"},
	},
	domain.SourceQuickBooks: {
		{domain.FieldDocumentNumber: "1001", domain.FieldVendorCustomer: "Office Depot", domain.FieldDescription: "Office supplies", domain.FieldAccountCode: "6300", domain.FieldAmount: "-250.50"},
		{domain.FieldDocumentNumber: "INV-001", domain.FieldVendorCustomer: "ABC Corp", domain.FieldDescription: "Consulting payment", domain.FieldAccountCode: "4100", domain.FieldAmount: "8500.00"},
	},
	domain.SourceXero: {
		{domain.FieldVendorCustomer: "ABC Corp", domain.FieldAmount: "5000.00", domain.FieldReferenceNumber: "INV-001", domain.FieldDescription: "Payment received", domain.FieldAccountCode: "4100"},
		{domain.FieldVendorCustomer: "Office Depot", domain.FieldAmount: "-250.00", domain.FieldReferenceNumber: "EXP-001", domain.FieldDescription: "Office supplies", domain.FieldAccountCode: "6300", domain.FieldDocumentNumber: "1001"},
	},
	domain.SourceBankStatement: {
		{domain.FieldDescription: "Transfer from client", domain.FieldAmount: "50000.00", domain.FieldReferenceNumber: "TRF-001", domain.FieldAccountCode: "1000"},
		{domain.FieldDescription: "Supplier payment", domain.FieldAmount: "-15000.00", domain.FieldReferenceNumber: "PAY-001", domain.FieldAccountCode: "2000"},
	},
	domain.SourceJournal: {
		{domain.FieldAccountCode: "6000", domain.FieldDescription: "Salary expense", domain.FieldDebit: "85000.00", domain.FieldReferenceNumber: "JV-001"},
		{domain.FieldAccountCode: "1000", domain.FieldDescription: "Cash paid for salary", domain.FieldCredit: "85000.00", domain.FieldReferenceNumber: "JV-001"},
	},
	domain.SourceCustom: {
		{domain.FieldAmount: "5000.00", domain.FieldReferenceNumber: "REF-001", domain.FieldDescription: "Sample revenue entry", domain.FieldAccountCode: "4100"},
		{domain.FieldAmount: "-1200.00", domain.FieldReferenceNumber: "REF-002", domain.FieldDescription: "Sample expense entry", domain.FieldAccountCode: "6300"},
	},
}

var unsafeFileChars = regexp.MustCompile(`[^\p{L}\p{N} ]+`)

// Sample renders a BOM-prefixed CSV with the template's headers and two example rows that
// import cleanly with it. Dates use the rule's own format, counted back from now.
func Sample(tpl domain.Template, now time.Time) (string, []byte, error) {
	rows, ok := sampleRows[tpl.SourceType]
	if !ok {
		rows = sampleRows[domain.SourceCustom]
	}

	var buf bytes.Buffer
	buf.WriteString("\ufeff")
	writer := csv.NewWriter(&buf)
	writer.UseCRLF = true

	if err := writer.Write(tpl.SourceColumns()); err != nil {
		return "", nil, fmt.Errorf("failed to write sample header: %w", err)
	}
	for i, sample := range rows {
		day := now.AddDate(0, 0, -i)
		record := make([]string, 0, len(tpl.Mappings))
		for _, m := range tpl.Mappings {
			record = append(record, sampleValue(m, sample, day))
		}
		if err := writer.Write(record); err != nil {
			return "", nil, fmt.Errorf("failed to write sample row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", nil, fmt.Errorf("failed to write sample: %w", err)
	}

	name := strings.Join(strings.Fields(unsafeFileChars.ReplaceAllString(tpl.Name, "_")), "_")
	if name == "" {
		name = "template"
	}
	return name + "_template.csv", buf.Bytes(), nil
}

func sampleValue(m domain.ColumnMapping, sample map[string]string, day time.Time) string {
	if m.Target == domain.FieldTransactionDate {
		layout := mapping.Layout(m.Format)
		if layout == "" {
			layout = "2006-01-02"
		}
		return day.Format(layout)
	}
	if value, ok := sample[m.Target]; ok {
		return value
	}
	if m.Target == domain.FieldAmount {
		if debit, ok := sample[domain.FieldDebit]; ok {
			return debit
		}
		if credit, ok := sample[domain.FieldCredit]; ok {
			return "-" + credit
		}
	}
	if amount, ok := sample[domain.FieldAmount]; ok {
		negative := strings.HasPrefix(amount, "-")
		switch {
		case m.Target == domain.FieldDebit && !negative:
			return amount
		case m.Target == domain.FieldCredit && negative:
			return strings.TrimPrefix(amount, "-")
		}
	}
	if m.Target == domain.FieldAccountCode {
		return "4100"
	}
	return ""
}
