package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/ledgerflow/internal/db"
	"github.com/rpattn/ledgerflow/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ledgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository wires statement line item resolution and posting writes.
func NewLedgerRepository(pool *pgxpool.Pool) LedgerRepository {
	return &ledgerRepository{pool: pool}
}

func (r *ledgerRepository) ResolveTarget(ctx context.Context, accountCode string, date time.Time) (domain.PostingTarget, error) {
	if r.pool == nil {
		return domain.PostingTarget{}, fmt.Errorf("ledger repository not initialized")
	}

	var target domain.PostingTarget
	err := r.pool.QueryRow(
		ctx,
		`SELECT s.id, li.id
		 FROM financial_line_items li
		 JOIN financial_statements s ON s.id = li.statement_id
		 WHERE li.line_code = $1
		   AND s.period_start <= $2
		   AND s.period_end >= $2
		 ORDER BY s.period_start DESC, s.created_at DESC
		 LIMIT 1`,
		accountCode,
		pgtype.Date{Time: date, Valid: true},
	).Scan(&target.StatementID, &target.LineItemID)
	if err != nil {
		if isNoRows(err) {
			return domain.PostingTarget{}, fmt.Errorf("account %s on %s: %w", accountCode, date.Format("2006-01-02"), domain.ErrPostingTargetNotFound)
		}
		return domain.PostingTarget{}, fmt.Errorf("failed to resolve posting target: %w", err)
	}
	return target, nil
}

func (r *ledgerRepository) ApplyPosting(ctx context.Context, txID uuid.UUID, target domain.PostingTarget, postedAt time.Time) (PostingReceipt, error) {
	if r.pool == nil {
		return PostingReceipt{}, fmt.Errorf("ledger repository not initialized")
	}

	var receipt PostingReceipt
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(
			ctx,
			`WITH prev AS (
			     SELECT id AS prev_id, first_posted_at IS NULL AS prev_first
			     FROM imported_transactions
			     WHERE id = $1
			     FOR UPDATE
			 )
			 UPDATE imported_transactions
			 SET posted_at = $2,
			     first_posted_at = COALESCE(first_posted_at, $2),
			     posted_statement_id = $3,
			     posted_line_item_id = $4,
			     updated_at = now()
			 FROM prev
			 WHERE id = prev.prev_id
			   AND status = 'approved'
			   AND posted_at IS NULL
			 RETURNING `+transactionColumns+`, prev.prev_first`,
			txID,
			postedAt,
			target.StatementID,
			target.LineItemID,
		)
		var first bool
		posted, err := scanTransaction(row, &first)
		if err != nil {
			if isNoRows(err) {
				return postingRefusal(ctx, tx, txID)
			}
			return fmt.Errorf("failed to mark transaction posted: %w", err)
		}

		item, err := adjustLineItem(ctx, tx, target.LineItemID, numericFromDecimal(posted.AmountOrZero()), "+")
		if err != nil {
			return err
		}
		if item.StatementID != target.StatementID {
			return fmt.Errorf("line item %s is not in statement %s: %w", target.LineItemID, target.StatementID, domain.ErrPostingTargetNotFound)
		}

		if first {
			if _, err := tx.Exec(
				ctx,
				`UPDATE import_logs SET imported_rows = imported_rows + 1, updated_at = now() WHERE id = $1`,
				posted.ImportLogID,
			); err != nil {
				return fmt.Errorf("failed to increment imported rows: %w", err)
			}
		}

		receipt = PostingReceipt{Transaction: posted, LineItem: item, FirstPosting: first}
		return nil
	})
	if err != nil {
		return PostingReceipt{}, err
	}
	return receipt, nil
}

func (r *ledgerRepository) ReversePosting(ctx context.Context, txID uuid.UUID) (PostingReceipt, error) {
	if r.pool == nil {
		return PostingReceipt{}, fmt.Errorf("ledger repository not initialized")
	}

	var receipt PostingReceipt
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(
			ctx,
			`WITH prev AS (
			     SELECT id AS prev_id, posted_line_item_id AS prev_line_item_id
			     FROM imported_transactions
			     WHERE id = $1
			     FOR UPDATE
			 )
			 UPDATE imported_transactions
			 SET posted_at = NULL,
			     posted_statement_id = NULL,
			     posted_line_item_id = NULL,
			     status = 'approved',
			     updated_at = now()
			 FROM prev
			 WHERE id = prev.prev_id
			   AND posted_at IS NOT NULL
			 RETURNING `+transactionColumns+`, prev.prev_line_item_id`,
			txID,
		)
		var lineItemID pgtype.UUID
		reverted, err := scanTransaction(row, &lineItemID)
		if err != nil {
			if isNoRows(err) {
				current, getErr := getTransaction(ctx, tx, txID)
				if getErr != nil {
					return getErr
				}
				return domain.NewTransitionError(string(current.Status), string(current.Status), "transaction is not posted")
			}
			return fmt.Errorf("failed to clear posting: %w", err)
		}

		receipt = PostingReceipt{Transaction: reverted}
		if !lineItemID.Valid {
			return nil
		}
		item, err := adjustLineItem(ctx, tx, uuid.UUID(lineItemID.Bytes), numericFromDecimal(reverted.AmountOrZero()), "-")
		if err != nil {
			// The statement was already removed; the transaction is still released.
			if errors.Is(err, domain.ErrPostingTargetNotFound) {
				return nil
			}
			return err
		}
		receipt.LineItem = item
		return nil
	})
	if err != nil {
		return PostingReceipt{}, err
	}
	return receipt, nil
}

func (r *ledgerRepository) GetLineItem(ctx context.Context, id uuid.UUID) (domain.LineItem, error) {
	if r.pool == nil {
		return domain.LineItem{}, fmt.Errorf("ledger repository not initialized")
	}

	item, err := scanLineItem(r.pool.QueryRow(
		ctx,
		`SELECT id, statement_id, line_code, line_name, amount FROM financial_line_items WHERE id = $1`,
		id,
	))
	if err != nil {
		if isNoRows(err) {
			return domain.LineItem{}, fmt.Errorf("line item %s: %w", id, domain.ErrNotFound)
		}
		return domain.LineItem{}, fmt.Errorf("failed to get line item: %w", err)
	}
	return item, nil
}

func (r *ledgerRepository) StatementSummary(ctx context.Context, statementID uuid.UUID) ([]domain.AccountPostingSummary, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("ledger repository not initialized")
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT account_code, count(*), COALESCE(sum(amount), 0), min(transaction_date), max(transaction_date)
		 FROM imported_transactions
		 WHERE posted_statement_id = $1
		   AND posted_at IS NOT NULL
		 GROUP BY account_code
		 ORDER BY account_code`,
		statementID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize statement postings: %w", err)
	}
	defer rows.Close()

	summaries := []domain.AccountPostingSummary{}
	for rows.Next() {
		var (
			summary  domain.AccountPostingSummary
			count    int64
			total    pgtype.Numeric
			earliest pgtype.Date
			latest   pgtype.Date
		)
		if err := rows.Scan(&summary.AccountCode, &count, &total, &earliest, &latest); err != nil {
			return nil, fmt.Errorf("failed to scan statement summary: %w", err)
		}
		summary.TransactionCount = int(count)
		summary.TotalAmount = decimalFromNumeric(total)
		summary.EarliestDate = timePtrFromDate(earliest)
		summary.LatestDate = timePtrFromDate(latest)
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate statement summary: %w", err)
	}
	return summaries, nil
}

// postingRefusal explains why the conditional posting write matched no row.
func postingRefusal(ctx context.Context, tx pgx.Tx, txID uuid.UUID) error {
	current, err := getTransaction(ctx, tx, txID)
	if err != nil {
		return err
	}
	if current.IsPosted() {
		return fmt.Errorf("transaction %s already posted: %w", txID, domain.ErrPostingConflict)
	}
	return domain.NewTransitionError(string(current.Status), "posted", "only approved transactions can be posted")
}

func adjustLineItem(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount pgtype.Numeric, op string) (domain.LineItem, error) {
	query := `UPDATE financial_line_items SET amount = amount + $2 WHERE id = $1
		 RETURNING id, statement_id, line_code, line_name, amount`
	if op == "-" {
		query = `UPDATE financial_line_items SET amount = amount - $2 WHERE id = $1
		 RETURNING id, statement_id, line_code, line_name, amount`
	}

	item, err := scanLineItem(tx.QueryRow(ctx, query, id, amount))
	if err != nil {
		if isNoRows(err) {
			return domain.LineItem{}, fmt.Errorf("line item %s: %w", id, domain.ErrPostingTargetNotFound)
		}
		return domain.LineItem{}, fmt.Errorf("failed to update line item amount: %w", err)
	}
	return item, nil
}

func scanLineItem(row pgx.Row) (domain.LineItem, error) {
	var (
		item   domain.LineItem
		amount pgtype.Numeric
	)
	if err := row.Scan(&item.ID, &item.StatementID, &item.LineCode, &item.LineName, &amount); err != nil {
		return domain.LineItem{}, err
	}
	item.Amount = decimalFromNumeric(amount)
	return item, nil
}
