package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/ledgerflow/internal/db"
	"github.com/rpattn/ledgerflow/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const transactionColumns = `id, import_log_id, row_number, transaction_date, description, amount,
	account_code, vendor_customer, department, category, document_number, reference_number,
	status, validation_status, validation_errors, validation_warnings, rejection_reason, raw,
	posted_at, first_posted_at, posted_statement_id, posted_line_item_id, created_at, updated_at`

var stageColumns = []string{
	"id", "import_log_id", "row_number", "transaction_date", "description", "amount",
	"account_code", "vendor_customer", "department", "category", "document_number", "reference_number",
	"status", "validation_status", "validation_errors", "validation_warnings", "raw",
	"created_at", "updated_at",
}

type transactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository wires the staging store backed by pgxpool.
func NewTransactionRepository(pool *pgxpool.Pool) TransactionRepository {
	return &transactionRepository{pool: pool}
}

func (r *transactionRepository) Stage(ctx context.Context, logID uuid.UUID, txs []domain.Transaction) (domain.StatusCounts, error) {
	if r.pool == nil {
		return domain.StatusCounts{}, fmt.Errorf("transaction repository not initialized")
	}

	var counts domain.StatusCounts
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		// Hold the log row so a concurrent recovery cannot fail it while rows land.
		var status string
		if err := tx.QueryRow(ctx, `SELECT status FROM import_logs WHERE id = $1 FOR UPDATE`, logID).Scan(&status); err != nil {
			if isNoRows(err) {
				return fmt.Errorf("import log %s: %w", logID, domain.ErrNotFound)
			}
			return fmt.Errorf("failed to lock import log: %w", err)
		}
		if status != string(domain.ImportStatusProcessing) {
			return domain.NewTransitionError(status, string(domain.ImportStatusProcessing),
				fmt.Sprintf("import %s is %s, rows can only be staged while processing", logID, status))
		}

		now := time.Now().UTC()
		source := pgx.CopyFromSlice(len(txs), func(i int) ([]any, error) {
			t := txs[i]
			errs, err := jsonStrings(t.ValidationErrors)
			if err != nil {
				return nil, err
			}
			warnings, err := jsonStrings(t.ValidationWarnings)
			if err != nil {
				return nil, err
			}
			raw, err := jsonObject(t.Raw)
			if err != nil {
				return nil, err
			}
			id := t.ID
			if id == uuid.Nil {
				id = uuid.New()
			}
			status := t.Status
			if status == "" {
				status = domain.TransactionStatusPending
			}
			return []any{
				id, logID, int32(t.RowNumber), dateFromTime(t.TransactionDate), t.Description,
				numericFromDecimalPtr(t.Amount), t.AccountCode, t.VendorCustomer, t.Department,
				t.Category, t.DocumentNumber, t.ReferenceNumber, string(status),
				string(t.ValidationStatus), errs, warnings, raw, now, now,
			}, nil
		})

		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"imported_transactions"}, stageColumns, source); err != nil {
			return fmt.Errorf("failed to copy staged transactions: %w", err)
		}

		row := tx.QueryRow(
			ctx,
			`SELECT count(*),
			        count(*) FILTER (WHERE validation_status = 'valid'),
			        count(*) FILTER (WHERE validation_status = 'invalid')
			 FROM imported_transactions
			 WHERE import_log_id = $1`,
			logID,
		)
		var total, valid, invalid int64
		if err := row.Scan(&total, &valid, &invalid); err != nil {
			return fmt.Errorf("failed to count staged transactions: %w", err)
		}
		counts = domain.StatusCounts{Total: int(total), Valid: int(valid), Invalid: int(invalid)}
		return nil
	})
	if err != nil {
		return domain.StatusCounts{}, fmt.Errorf("failed to stage transactions: %w", err)
	}
	return counts, nil
}

func (r *transactionRepository) Get(ctx context.Context, id uuid.UUID) (domain.Transaction, error) {
	if r.pool == nil {
		return domain.Transaction{}, fmt.Errorf("transaction repository not initialized")
	}
	return getTransaction(ctx, r.pool, id)
}

func (r *transactionRepository) List(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("transaction repository not initialized")
	}

	var (
		clauses []string
		args    []any
	)
	if filter.ImportLogID != nil {
		args = append(args, *filter.ImportLogID)
		clauses = append(clauses, fmt.Sprintf("import_log_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + transactionColumns + ` FROM imported_transactions`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY import_log_id, row_number"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return collectTransactions(rows)
}

func (r *transactionRepository) CountByLog(ctx context.Context, logID uuid.UUID) (domain.StatusCounts, error) {
	if r.pool == nil {
		return domain.StatusCounts{}, fmt.Errorf("transaction repository not initialized")
	}

	var total, valid, invalid int64
	err := r.pool.QueryRow(
		ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE validation_status = 'valid'),
		        count(*) FILTER (WHERE validation_status = 'invalid')
		 FROM imported_transactions
		 WHERE import_log_id = $1`,
		logID,
	).Scan(&total, &valid, &invalid)
	if err != nil {
		return domain.StatusCounts{}, fmt.Errorf("failed to count transactions: %w", err)
	}
	return domain.StatusCounts{Total: int(total), Valid: int(valid), Invalid: int(invalid)}, nil
}

func (r *transactionRepository) CountByStatus(ctx context.Context, logID uuid.UUID) (map[domain.TransactionStatus]int, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("transaction repository not initialized")
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT status, count(*) FROM imported_transactions WHERE import_log_id = $1 GROUP BY status`,
		logID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count transactions by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.TransactionStatus]int)
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[domain.TransactionStatus(status)] = int(count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate status counts: %w", err)
	}
	return counts, nil
}

func (r *transactionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.TransactionStatus, reason string) (domain.Transaction, error) {
	if r.pool == nil {
		return domain.Transaction{}, fmt.Errorf("transaction repository not initialized")
	}

	row := r.pool.QueryRow(
		ctx,
		`UPDATE imported_transactions
		 SET status = $3::text,
		     rejection_reason = CASE WHEN $3::text = 'rejected' THEN $4::text ELSE rejection_reason END,
		     updated_at = now()
		 WHERE id = $1
		   AND status = $2
		   AND posted_at IS NULL
		   AND ($3::text <> 'approved' OR validation_status = 'valid')
		 RETURNING `+transactionColumns,
		id,
		string(from),
		string(to),
		reason,
	)
	updated, err := scanTransaction(row)
	if err == nil {
		return updated, nil
	}
	if !isNoRows(err) {
		return domain.Transaction{}, fmt.Errorf("failed to update transaction status: %w", err)
	}

	current, getErr := r.Get(ctx, id)
	if getErr != nil {
		return domain.Transaction{}, getErr
	}
	return domain.Transaction{}, domain.NewTransitionError(string(current.Status), string(to), "")
}

func (r *transactionRepository) Amend(ctx context.Context, t domain.Transaction) (domain.Transaction, error) {
	if r.pool == nil {
		return domain.Transaction{}, fmt.Errorf("transaction repository not initialized")
	}

	errs, err := jsonStrings(t.ValidationErrors)
	if err != nil {
		return domain.Transaction{}, err
	}
	warnings, err := jsonStrings(t.ValidationWarnings)
	if err != nil {
		return domain.Transaction{}, err
	}

	row := r.pool.QueryRow(
		ctx,
		`UPDATE imported_transactions
		 SET account_code = $2,
		     description = $3,
		     vendor_customer = $4,
		     department = $5,
		     category = $6,
		     validation_status = $7,
		     validation_errors = $8,
		     validation_warnings = $9,
		     updated_at = now()
		 WHERE id = $1
		   AND status = 'pending'
		   AND posted_at IS NULL
		 RETURNING `+transactionColumns,
		t.ID,
		t.AccountCode,
		t.Description,
		t.VendorCustomer,
		t.Department,
		t.Category,
		string(t.ValidationStatus),
		errs,
		warnings,
	)
	updated, err := scanTransaction(row)
	if err == nil {
		return updated, nil
	}
	if !isNoRows(err) {
		return domain.Transaction{}, fmt.Errorf("failed to amend transaction: %w", err)
	}

	current, getErr := r.Get(ctx, t.ID)
	if getErr != nil {
		return domain.Transaction{}, getErr
	}
	return domain.Transaction{}, domain.NewTransitionError(string(current.Status), string(current.Status), "only pending transactions can be amended")
}

func (r *transactionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if r.pool == nil {
		return fmt.Errorf("transaction repository not initialized")
	}

	tag, err := r.pool.Exec(
		ctx,
		`DELETE FROM imported_transactions
		 WHERE id = $1
		   AND status IN ('pending', 'rejected')
		   AND first_posted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	current, getErr := r.Get(ctx, id)
	if getErr != nil {
		return getErr
	}
	return domain.NewTransitionError(string(current.Status), "deleted", "only pending or rejected transactions that were never posted can be deleted")
}

func (r *transactionRepository) ListByStatement(ctx context.Context, statementID uuid.UUID) ([]domain.Transaction, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("transaction repository not initialized")
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT `+transactionColumns+`
		 FROM imported_transactions
		 WHERE posted_statement_id = $1
		   AND posted_at IS NOT NULL
		 ORDER BY posted_at, row_number`,
		statementID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions by statement: %w", err)
	}
	return collectTransactions(rows)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getTransaction(ctx context.Context, q rowQuerier, id uuid.UUID) (domain.Transaction, error) {
	row := q.QueryRow(ctx, `SELECT `+transactionColumns+` FROM imported_transactions WHERE id = $1`, id)
	t, err := scanTransaction(row)
	if err != nil {
		if isNoRows(err) {
			return domain.Transaction{}, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
		}
		return domain.Transaction{}, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

func collectTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	defer rows.Close()

	txs := []domain.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txs, nil
}

func scanTransaction(row pgx.Row, extra ...any) (domain.Transaction, error) {
	var (
		t                 domain.Transaction
		rowNumber         int32
		date              pgtype.Date
		amount            pgtype.Numeric
		status            string
		validationStatus  string
		validationErrors  []byte
		validationWarning []byte
		raw               []byte
		postedAt          pgtype.Timestamptz
		firstPostedAt     pgtype.Timestamptz
		statementID       pgtype.UUID
		lineItemID        pgtype.UUID
	)
	dest := []any{
		&t.ID,
		&t.ImportLogID,
		&rowNumber,
		&date,
		&t.Description,
		&amount,
		&t.AccountCode,
		&t.VendorCustomer,
		&t.Department,
		&t.Category,
		&t.DocumentNumber,
		&t.ReferenceNumber,
		&status,
		&validationStatus,
		&validationErrors,
		&validationWarning,
		&t.RejectionReason,
		&raw,
		&postedAt,
		&firstPostedAt,
		&statementID,
		&lineItemID,
		&t.CreatedAt,
		&t.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return domain.Transaction{}, err
	}

	errs, err := decodeStrings(validationErrors)
	if err != nil {
		return domain.Transaction{}, err
	}
	warnings, err := decodeStrings(validationWarning)
	if err != nil {
		return domain.Transaction{}, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &t.Raw); err != nil {
			return domain.Transaction{}, fmt.Errorf("failed to decode raw row: %w", err)
		}
	}

	t.RowNumber = int(rowNumber)
	t.TransactionDate = timePtrFromDate(date)
	t.Amount = decimalPtrFromNumeric(amount)
	t.Status = domain.TransactionStatus(status)
	t.ValidationStatus = domain.ValidationStatus(validationStatus)
	t.ValidationErrors = errs
	t.ValidationWarnings = warnings
	t.PostedAt = timePtrFromTimestamptz(postedAt)
	t.FirstPostedAt = timePtrFromTimestamptz(firstPostedAt)
	t.PostedStatementID = uuidPtrFromPg(statementID)
	t.PostedLineItemID = uuidPtrFromPg(lineItemID)
	return t, nil
}
