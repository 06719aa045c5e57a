package seed

import (
	"context"
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/morroware/FEC-STL-sub000/internal/repository"
)

//go:embed categories.yaml
var categoriesYAML []byte

// CategoryPreset is one entry of the built-in category list.
type CategoryPreset struct {
	Name        string `yaml:"name"`
	Icon        string `yaml:"icon"`
	Description string `yaml:"description"`
}

// DefaultCategories returns the built-in category list.
func DefaultCategories() ([]CategoryPreset, error) {
	var presets []CategoryPreset
	if err := yaml.Unmarshal(categoriesYAML, &presets); err != nil {
		return nil, fmt.Errorf("parse category presets: %w", err)
	}
	return presets, nil
}

// Categories creates the built-in categories when the catalog has none and
// returns how many were created. A catalog with any category is left alone,
// so running it on every start is safe.
func Categories(ctx context.Context, repo repository.CategoryRepository) (int, error) {
	existing, err := repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list categories: %w", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}

	presets, err := DefaultCategories()
	if err != nil {
		return 0, err
	}
	for i, p := range presets {
		_, err := repo.Create(ctx, repository.NewCategory{
			Name:        p.Name,
			Icon:        p.Icon,
			Description: p.Description,
		})
		if err != nil {
			return i, fmt.Errorf("seed category %s: %w", p.Name, err)
		}
	}
	return len(presets), nil
}
