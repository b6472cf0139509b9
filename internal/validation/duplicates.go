package validation

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/rpattn/ledgerflow/internal/domain"
)

const duplicateWarningPrefix = "possible duplicate of row"

// DuplicateTracker remembers the (date, amount, reference) hash of every row seen in one
// import. It is not safe for concurrent use; feed it from the single aggregation point.
type DuplicateTracker struct {
	seen map[string]int
}

// NewDuplicateTracker creates an empty tracker.
func NewDuplicateTracker() *DuplicateTracker {
	return &DuplicateTracker{seen: make(map[string]int)}
}

// Observe records the outcome's row and appends a warning when an earlier row had the same
// hash. Validity never changes.
func (d *DuplicateTracker) Observe(outcome Outcome) Outcome {
	key, ok := DuplicateKey(outcome.Transaction)
	if !ok {
		return outcome
	}
	first, exists := d.seen[key]
	if !exists {
		d.seen[key] = outcome.Transaction.RowNumber
		return outcome
	}

	warning := fmt.Sprintf("%s %d", duplicateWarningPrefix, first)
	outcome.Warnings = append(outcome.Warnings, warning)
	outcome.Transaction.ValidationWarnings = outcome.Warnings
	return outcome
}

// DuplicateKey hashes the fields that identify a repeated row. Rows without a date or an
// amount cannot be compared.
func DuplicateKey(tx domain.Transaction) (string, bool) {
	if tx.TransactionDate == nil || tx.Amount == nil {
		return "", false
	}
	payload := strings.Join([]string{
		tx.TransactionDate.Format("2006-01-02"),
		tx.Amount.String(),
		strings.TrimSpace(tx.ReferenceNumber),
	}, "|")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:]), true
}

func isDuplicateWarning(warning string) bool {
	return strings.HasPrefix(warning, duplicateWarningPrefix)
}
