package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/rpattn/ledgerflow/internal/db"
	"github.com/rpattn/ledgerflow/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const importLogColumns = `id, template_id, file_name, status, total_rows, valid_rows, invalid_rows,
	imported_rows, error_summary, failure_reason, started_at, completed_at, updated_at`

type importLogRepository struct {
	pool *pgxpool.Pool
}

// NewImportLogRepository wires a repository backed by pgxpool.
func NewImportLogRepository(pool *pgxpool.Pool) ImportLogRepository {
	return &importLogRepository{pool: pool}
}

func (r *importLogRepository) Create(ctx context.Context, log domain.ImportLog) (domain.ImportLog, error) {
	if r.pool == nil {
		return domain.ImportLog{}, fmt.Errorf("import log repository not initialized")
	}

	summary, err := jsonStrings(log.ErrorSummary)
	if err != nil {
		return domain.ImportLog{}, err
	}

	row := r.pool.QueryRow(
		ctx,
		`INSERT INTO import_logs (id, template_id, file_name, status, error_summary, started_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 RETURNING `+importLogColumns,
		log.ID,
		log.TemplateID,
		log.FileName,
		string(log.Status),
		summary,
		log.StartedAt,
	)
	created, err := scanImportLog(row)
	if err != nil {
		return domain.ImportLog{}, fmt.Errorf("failed to create import log: %w", err)
	}
	return created, nil
}

func (r *importLogRepository) Get(ctx context.Context, id uuid.UUID) (domain.ImportLog, error) {
	if r.pool == nil {
		return domain.ImportLog{}, fmt.Errorf("import log repository not initialized")
	}

	row := r.pool.QueryRow(ctx, `SELECT `+importLogColumns+` FROM import_logs WHERE id = $1`, id)
	log, err := scanImportLog(row)
	if err != nil {
		if isNoRows(err) {
			return domain.ImportLog{}, fmt.Errorf("import log %s: %w", id, domain.ErrNotFound)
		}
		return domain.ImportLog{}, fmt.Errorf("failed to get import log: %w", err)
	}
	return log, nil
}

func (r *importLogRepository) List(ctx context.Context, limit int) ([]domain.ImportLog, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("import log repository not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT `+importLogColumns+` FROM import_logs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list import logs: %w", err)
	}
	return collectImportLogs(rows)
}

func (r *importLogRepository) ListByStatus(ctx context.Context, status domain.ImportStatus, startedBefore time.Time) ([]domain.ImportLog, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("import log repository not initialized")
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT `+importLogColumns+`
		 FROM import_logs
		 WHERE status = $1
		   AND started_at < $2
		 ORDER BY started_at`,
		string(status),
		startedBefore,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list import logs by status: %w", err)
	}
	return collectImportLogs(rows)
}

func (r *importLogRepository) Transition(ctx context.Context, id uuid.UUID, from, to domain.ImportStatus, update ImportLogUpdate) (domain.ImportLog, error) {
	if r.pool == nil {
		return domain.ImportLog{}, fmt.Errorf("import log repository not initialized")
	}

	var total, valid, invalid pgtype.Int4
	if update.Counters != nil {
		total = pgtype.Int4{Int32: int32(update.Counters.TotalRows), Valid: true}
		valid = pgtype.Int4{Int32: int32(update.Counters.ValidRows), Valid: true}
		invalid = pgtype.Int4{Int32: int32(update.Counters.InvalidRows), Valid: true}
	}
	var summary []byte
	if update.ErrorSummary != nil {
		encoded, err := jsonStrings(update.ErrorSummary)
		if err != nil {
			return domain.ImportLog{}, err
		}
		summary = encoded
	}

	var updated domain.ImportLog
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		// The row lock orders this transition against a concurrent Stage of the same log.
		var current string
		if err := tx.QueryRow(ctx, `SELECT status FROM import_logs WHERE id = $1 FOR UPDATE`, id).Scan(&current); err != nil {
			if isNoRows(err) {
				return fmt.Errorf("import log %s: %w", id, domain.ErrNotFound)
			}
			return fmt.Errorf("failed to lock import log: %w", err)
		}
		if current != string(from) {
			return domain.NewTransitionError(current, string(to), "")
		}
		if update.RequireNothingStaged {
			var staged bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM imported_transactions WHERE import_log_id = $1)`, id).Scan(&staged); err != nil {
				return fmt.Errorf("failed to check staged transactions: %w", err)
			}
			if staged {
				return domain.NewTransitionError(current, string(to), "rows were staged")
			}
		}

		row := tx.QueryRow(
			ctx,
			`UPDATE import_logs
			 SET status = $2,
			     total_rows = COALESCE($3, total_rows),
			     valid_rows = COALESCE($4, valid_rows),
			     invalid_rows = COALESCE($5, invalid_rows),
			     error_summary = COALESCE($6::jsonb, error_summary),
			     failure_reason = COALESCE(NULLIF($7::text, ''), failure_reason),
			     completed_at = CASE WHEN $8::boolean THEN now() ELSE completed_at END,
			     updated_at = now()
			 WHERE id = $1
			 RETURNING `+importLogColumns,
			id,
			string(to),
			total,
			valid,
			invalid,
			summary,
			update.FailureReason,
			update.Completed,
		)
		var err error
		updated, err = scanImportLog(row)
		if err != nil {
			return fmt.Errorf("failed to update import log status: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.ImportLog{}, err
	}
	return updated, nil
}

func collectImportLogs(rows pgx.Rows) ([]domain.ImportLog, error) {
	defer rows.Close()

	logs := []domain.ImportLog{}
	for rows.Next() {
		log, err := scanImportLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import log: %w", err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate import logs: %w", err)
	}
	return logs, nil
}

func scanImportLog(row pgx.Row) (domain.ImportLog, error) {
	var (
		log         domain.ImportLog
		status      string
		total       int32
		valid       int32
		invalid     int32
		imported    int32
		summary     []byte
		completedAt pgtype.Timestamptz
	)
	if err := row.Scan(
		&log.ID,
		&log.TemplateID,
		&log.FileName,
		&status,
		&total,
		&valid,
		&invalid,
		&imported,
		&summary,
		&log.FailureReason,
		&log.StartedAt,
		&completedAt,
		&log.UpdatedAt,
	); err != nil {
		return domain.ImportLog{}, err
	}

	decoded, err := decodeStrings(summary)
	if err != nil {
		return domain.ImportLog{}, err
	}

	log.Status = domain.ImportStatus(status)
	log.TotalRows = int(total)
	log.ValidRows = int(valid)
	log.InvalidRows = int(invalid)
	log.ImportedRows = int(imported)
	log.ErrorSummary = decoded
	log.CompletedAt = timePtrFromTimestamptz(completedAt)
	return log, nil
}
