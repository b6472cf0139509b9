package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rpattn/ledgerflow/internal/domain"
	"github.com/rpattn/ledgerflow/internal/repository"

	"github.com/google/uuid"
)

// TemplateRepository keeps templates in memory.
type TemplateRepository struct {
	mu        sync.RWMutex
	templates map[uuid.UUID]domain.Template
}

var _ repository.TemplateRepository = (*TemplateRepository)(nil)

// NewTemplateRepository creates an empty template repository.
func NewTemplateRepository() *TemplateRepository {
	return &TemplateRepository{templates: make(map[uuid.UUID]domain.Template)}
}

func (r *TemplateRepository) Create(_ context.Context, tpl domain.Template) (domain.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.templates[tpl.ID]; exists {
		return domain.Template{}, fmt.Errorf("failed to create template: id %s already exists", tpl.ID)
	}
	if tpl.Active && r.activeByNameLocked(tpl.Name) != nil {
		return domain.Template{}, fmt.Errorf("failed to create template: active template %q already exists", tpl.Name)
	}
	r.templates[tpl.ID] = cloneTemplate(tpl)
	return cloneTemplate(tpl), nil
}

func (r *TemplateRepository) GetByID(_ context.Context, id uuid.UUID) (domain.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tpl, ok := r.templates[id]
	if !ok {
		return domain.Template{}, fmt.Errorf("template %s: %w", id, domain.ErrNotFound)
	}
	return cloneTemplate(tpl), nil
}

func (r *TemplateRepository) GetActiveByName(_ context.Context, name string) (domain.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tpl := r.activeByNameLocked(name)
	if tpl == nil {
		return domain.Template{}, fmt.Errorf("template %q: %w", name, domain.ErrNotFound)
	}
	return cloneTemplate(*tpl), nil
}

func (r *TemplateRepository) List(_ context.Context, includeInactive bool) ([]domain.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	templates := []domain.Template{}
	for _, tpl := range r.templates {
		if tpl.Active || includeInactive {
			templates = append(templates, cloneTemplate(tpl))
		}
	}
	sort.Slice(templates, func(i, j int) bool {
		if templates[i].Name != templates[j].Name {
			return templates[i].Name < templates[j].Name
		}
		return templates[i].Version < templates[j].Version
	})
	return templates, nil
}

func (r *TemplateRepository) ReplaceVersion(_ context.Context, previousID uuid.UUID, next domain.Template) (domain.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous, ok := r.templates[previousID]
	if !ok || !previous.Active {
		return domain.Template{}, fmt.Errorf("active template %s: %w", previousID, domain.ErrNotFound)
	}
	previous.Active = false
	previous.UpdatedAt = time.Now().UTC()
	r.templates[previousID] = previous

	next.Version = previous.Version + 1
	next.Active = true
	r.templates[next.ID] = cloneTemplate(next)
	return cloneTemplate(next), nil
}

func (r *TemplateRepository) Deactivate(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tpl, ok := r.templates[id]
	if !ok {
		return fmt.Errorf("template %s: %w", id, domain.ErrNotFound)
	}
	tpl.Active = false
	tpl.UpdatedAt = time.Now().UTC()
	r.templates[id] = tpl
	return nil
}

func (r *TemplateRepository) activeByNameLocked(name string) *domain.Template {
	for _, tpl := range r.templates {
		if tpl.Active && tpl.Name == name {
			found := tpl
			return &found
		}
	}
	return nil
}

func cloneTemplate(tpl domain.Template) domain.Template {
	tpl.Mappings = append([]domain.ColumnMapping{}, tpl.Mappings...)
	return tpl
}
