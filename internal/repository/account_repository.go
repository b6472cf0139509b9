package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type accountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository wires the chart-of-accounts lookup.
func NewAccountRepository(pool *pgxpool.Pool) AccountRepository {
	return &accountRepository{pool: pool}
}

// ExistingCodes returns the subset of codes present and active in the chart of accounts.
func (r *accountRepository) ExistingCodes(ctx context.Context, codes []string) (map[string]bool, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("account repository not initialized")
	}

	found := make(map[string]bool, len(codes))
	if len(codes) == 0 {
		return found, nil
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT account_code FROM chart_of_accounts WHERE active AND account_code = ANY($1)`,
		codes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to look up account codes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan account code: %w", err)
		}
		found[code] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate account codes: %w", err)
	}
	return found, nil
}
