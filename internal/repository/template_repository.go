package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rpattn/ledgerflow/internal/db"
	"github.com/rpattn/ledgerflow/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const templateColumns = `id, name, source_type, file_format, description, mappings, version, active, created_at, updated_at`

type templateRepository struct {
	pool *pgxpool.Pool
}

// NewTemplateRepository wires the template table of the shared control database.
func NewTemplateRepository(pool *pgxpool.Pool) TemplateRepository {
	return &templateRepository{pool: pool}
}

func (r *templateRepository) Create(ctx context.Context, tpl domain.Template) (domain.Template, error) {
	if r.pool == nil {
		return domain.Template{}, fmt.Errorf("template repository not initialized")
	}
	created, err := insertTemplate(ctx, r.pool, tpl)
	if err != nil {
		return domain.Template{}, fmt.Errorf("failed to create template: %w", err)
	}
	return created, nil
}

func (r *templateRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Template, error) {
	if r.pool == nil {
		return domain.Template{}, fmt.Errorf("template repository not initialized")
	}

	tpl, err := scanTemplate(r.pool.QueryRow(ctx, `SELECT `+templateColumns+` FROM import_templates WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return domain.Template{}, fmt.Errorf("template %s: %w", id, domain.ErrNotFound)
		}
		return domain.Template{}, fmt.Errorf("failed to get template: %w", err)
	}
	return tpl, nil
}

func (r *templateRepository) GetActiveByName(ctx context.Context, name string) (domain.Template, error) {
	if r.pool == nil {
		return domain.Template{}, fmt.Errorf("template repository not initialized")
	}

	tpl, err := scanTemplate(r.pool.QueryRow(
		ctx,
		`SELECT `+templateColumns+` FROM import_templates WHERE name = $1 AND active`,
		name,
	))
	if err != nil {
		if isNoRows(err) {
			return domain.Template{}, fmt.Errorf("template %q: %w", name, domain.ErrNotFound)
		}
		return domain.Template{}, fmt.Errorf("failed to get template by name: %w", err)
	}
	return tpl, nil
}

func (r *templateRepository) List(ctx context.Context, includeInactive bool) ([]domain.Template, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("template repository not initialized")
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT `+templateColumns+` FROM import_templates WHERE active OR $1 ORDER BY name, version`,
		includeInactive,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	templates := []domain.Template{}
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate templates: %w", err)
	}
	return templates, nil
}

func (r *templateRepository) ReplaceVersion(ctx context.Context, previousID uuid.UUID, next domain.Template) (domain.Template, error) {
	if r.pool == nil {
		return domain.Template{}, fmt.Errorf("template repository not initialized")
	}

	var created domain.Template
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var version int32
		err := tx.QueryRow(
			ctx,
			`UPDATE import_templates SET active = FALSE, updated_at = now()
			 WHERE id = $1 AND active
			 RETURNING version`,
			previousID,
		).Scan(&version)
		if err != nil {
			if isNoRows(err) {
				return fmt.Errorf("active template %s: %w", previousID, domain.ErrNotFound)
			}
			return fmt.Errorf("failed to deactivate template: %w", err)
		}

		next.Version = int(version) + 1
		next.Active = true
		inserted, err := insertTemplate(ctx, tx, next)
		if err != nil {
			return fmt.Errorf("failed to insert template version: %w", err)
		}
		created = inserted
		return nil
	})
	if err != nil {
		return domain.Template{}, err
	}
	return created, nil
}

func (r *templateRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	if r.pool == nil {
		return fmt.Errorf("template repository not initialized")
	}

	tag, err := r.pool.Exec(ctx, `UPDATE import_templates SET active = FALSE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("template %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func insertTemplate(ctx context.Context, q rowQuerier, tpl domain.Template) (domain.Template, error) {
	mappings, err := json.Marshal(tpl.Mappings)
	if err != nil {
		return domain.Template{}, fmt.Errorf("failed to encode mappings: %w", err)
	}
	return scanTemplate(q.QueryRow(
		ctx,
		`INSERT INTO import_templates (id, name, source_type, file_format, description, mappings, version, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		 RETURNING `+templateColumns,
		tpl.ID,
		tpl.Name,
		tpl.SourceType,
		string(tpl.FileFormat),
		tpl.Description,
		mappings,
		int32(tpl.Version),
		tpl.Active,
		tpl.CreatedAt,
	))
}

func scanTemplate(row pgx.Row) (domain.Template, error) {
	var (
		tpl      domain.Template
		format   string
		mappings []byte
		version  int32
	)
	if err := row.Scan(
		&tpl.ID,
		&tpl.Name,
		&tpl.SourceType,
		&format,
		&tpl.Description,
		&mappings,
		&version,
		&tpl.Active,
		&tpl.CreatedAt,
		&tpl.UpdatedAt,
	); err != nil {
		return domain.Template{}, err
	}
	if err := json.Unmarshal(mappings, &tpl.Mappings); err != nil {
		return domain.Template{}, fmt.Errorf("failed to decode mappings: %w", err)
	}
	tpl.FileFormat = domain.FileFormat(format)
	tpl.Version = int(version)
	return tpl, nil
}
