// Package templates manages the column-mapping templates imports are run with.
package templates

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rpattn/ledgerflow/internal/domain"
	"github.com/rpattn/ledgerflow/internal/logger"
	"github.com/rpattn/ledgerflow/internal/mapping"
	"github.com/rpattn/ledgerflow/internal/repository"

	"github.com/google/uuid"
)

// Registry stores templates and hands out mapping engines for them.
type Registry struct {
	repo repository.TemplateRepository
}

// NewRegistry wires a registry over repo.
func NewRegistry(repo repository.TemplateRepository) *Registry {
	return &Registry{repo: repo}
}

// TemplateInput is the user-supplied part of a template.
type TemplateInput struct {
	Name        string                 `json:"name"`
	SourceType  string                 `json:"source_type"`
	FileFormat  domain.FileFormat      `json:"file_format"`
	Description string                 `json:"description"`
	Mappings    []domain.ColumnMapping `json:"mappings"`
}

func (in TemplateInput) template() domain.Template {
	tpl := domain.NewTemplate(strings.TrimSpace(in.Name), in.SourceType, in.FileFormat, in.Mappings)
	tpl.Description = in.Description
	return tpl
}

// Register validates and stores a new template. Names must be unique among active templates.
func (r *Registry) Register(ctx context.Context, in TemplateInput) (domain.Template, error) {
	tpl := in.template()
	if err := tpl.Validate(); err != nil {
		return domain.Template{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	if _, err := r.repo.GetActiveByName(ctx, tpl.Name); err == nil {
		return domain.Template{}, fmt.Errorf("%w: template %q already exists", domain.ErrValidation, tpl.Name)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Template{}, err
	}

	created, err := r.repo.Create(ctx, tpl)
	if err != nil {
		return domain.Template{}, err
	}
	l := logger.FromContext(ctx)
	l.Info().
		Str("template_id", created.ID.String()).
		Str("template", created.Name).
		Msg("template registered")
	return created, nil
}

// Update stores in as the next version of template id and deactivates the old version, so
// imports already run against the old version keep pointing at the rules they used.
func (r *Registry) Update(ctx context.Context, id uuid.UUID, in TemplateInput) (domain.Template, error) {
	current, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Template{}, err
	}
	if in.Name == "" {
		in.Name = current.Name
	}
	if in.SourceType == "" {
		in.SourceType = current.SourceType
	}
	if in.FileFormat == "" {
		in.FileFormat = current.FileFormat
	}
	if in.Mappings == nil {
		in.Mappings = current.Mappings
	}

	next := in.template()
	if err := next.Validate(); err != nil {
		return domain.Template{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	created, err := r.repo.ReplaceVersion(ctx, id, next)
	if err != nil {
		return domain.Template{}, err
	}
	l := logger.FromContext(ctx)
	l.Info().
		Str("template_id", created.ID.String()).
		Str("previous_id", id.String()).
		Int("version", created.Version).
		Msg("template versioned")
	return created, nil
}

// Get returns a template by id, active or not.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (domain.Template, error) {
	return r.repo.GetByID(ctx, id)
}

// GetByName returns the active template with the given name.
func (r *Registry) GetByName(ctx context.Context, name string) (domain.Template, error) {
	return r.repo.GetActiveByName(ctx, name)
}

// List returns templates ordered by name and version.
func (r *Registry) List(ctx context.Context, includeInactive bool) ([]domain.Template, error) {
	return r.repo.List(ctx, includeInactive)
}

// Deactivate hides a template from new imports.
func (r *Registry) Deactivate(ctx context.Context, id uuid.UUID) error {
	return r.repo.Deactivate(ctx, id)
}

// Engine returns the mapping engine for an active template.
func (r *Registry) Engine(ctx context.Context, id uuid.UUID) (*mapping.Engine, error) {
	tpl, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tpl.Active {
		return nil, fmt.Errorf("%w: template %s (version %d) is inactive", domain.ErrValidation, tpl.Name, tpl.Version)
	}
	return mapping.NewEngine(tpl)
}

// Seed stores every template whose name has no active version yet.
func (r *Registry) Seed(ctx context.Context, seeds []domain.Template) ([]domain.Template, error) {
	created := []domain.Template{}
	for _, tpl := range seeds {
		if _, err := r.repo.GetActiveByName(ctx, tpl.Name); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrNotFound) {
			return created, err
		}

		stored, err := r.repo.Create(ctx, tpl)
		if err != nil {
			return created, fmt.Errorf("failed to seed template %s: %w", tpl.Name, err)
		}
		created = append(created, stored)
	}

	l := logger.FromContext(ctx)
	l.Info().Int("created", len(created)).Int("seeds", len(seeds)).Msg("templates seeded")
	return created, nil
}
