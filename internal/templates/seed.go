package templates

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/rpattn/ledgerflow/internal/domain"

	"gopkg.in/yaml.v3"
)

//go:embed default_templates.yaml
var defaultSeed []byte

type seedFile struct {
	Templates []seedTemplate `yaml:"templates"`
}

type seedTemplate struct {
	Name        string                 `yaml:"name"`
	SourceType  string                 `yaml:"source_type"`
	FileFormat  string                 `yaml:"file_format"`
	Description string                 `yaml:"description"`
	Mappings    []domain.ColumnMapping `yaml:"mappings"`
}

// DefaultSeed returns the templates shipped with the binary.
func DefaultSeed() ([]domain.Template, error) {
	return ParseSeed(defaultSeed)
}

// LoadSeedFile reads templates from a YAML file. An empty path yields the defaults.
func LoadSeedFile(path string) ([]domain.Template, error) {
	if path == "" {
		return DefaultSeed()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template seed %s: %w", path, err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes and validates a template seed document.
func ParseSeed(data []byte) ([]domain.Template, error) {
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse template seed: %w", err)
	}

	templates := make([]domain.Template, 0, len(file.Templates))
	for i, seed := range file.Templates {
		tpl := domain.NewTemplate(seed.Name, seed.SourceType, domain.FileFormat(seed.FileFormat), seed.Mappings)
		tpl.Description = seed.Description
		if err := tpl.Validate(); err != nil {
			return nil, fmt.Errorf("seed template %d (%s): %w", i+1, seed.Name, err)
		}
		templates = append(templates, tpl)
	}
	return templates, nil
}
