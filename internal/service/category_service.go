package service

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/morroware/FEC-STL-sub000/internal/cache"
	"github.com/morroware/FEC-STL-sub000/internal/models"
	"github.com/morroware/FEC-STL-sub000/internal/repository"
	"github.com/morroware/FEC-STL-sub000/internal/validation"
)

// CategoryService serves the category list from the cache and restricts
// mutations to admins.
type CategoryService struct {
	categories repository.CategoryRepository
}

// CategoryInput is the payload of create_category.
type CategoryInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Icon        string `json:"icon" validate:"max=64"`
	Description string `json:"description" validate:"max=2000"`
}

// CategoryPatch is the payload of update_category.
type CategoryPatch struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Icon        *string `json:"icon" validate:"omitempty,max=64"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

func NewCategoryService(categories repository.CategoryRepository) *CategoryService {
	return &CategoryService{categories: categories}
}

// List returns every category sorted by name.
func (s *CategoryService) List(ctx context.Context) (_ []models.Category, err error) {
	ctx, end := startSpan(ctx, "category.list")
	defer end(&err)

	return cache.Aside(ctx, cache.CategoriesKey, cache.CategoriesTTL, s.categories.List)
}

func (s *CategoryService) Get(ctx context.Context, id string) (*models.Category, error) {
	return s.categories.Get(ctx, id)
}

func (s *CategoryService) Create(ctx context.Context, actor Actor, in CategoryInput) (_ *models.Category, err error) {
	ctx, end := startSpan(ctx, "category.create")
	defer end(&err)

	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	cat, err := s.categories.Create(ctx, repository.NewCategory{
		Name:        in.Name,
		Icon:        strings.TrimSpace(in.Icon),
		Description: strings.TrimSpace(in.Description),
	})
	if err != nil {
		return nil, err
	}
	cache.InvalidateCategories(ctx)
	return cat, nil
}

func (s *CategoryService) Update(ctx context.Context, actor Actor, id string, in CategoryPatch) (_ *models.Category, err error) {
	ctx, end := startSpan(ctx, "category.update", attribute.String("category.id", id))
	defer end(&err)

	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	err = s.categories.Update(ctx, id, repository.CategoryUpdate{
		Name:        in.Name,
		Icon:        in.Icon,
		Description: in.Description,
	})
	if err != nil {
		return nil, err
	}
	cache.InvalidateCategories(ctx)
	return s.categories.Get(ctx, id)
}

// Delete removes an empty category. Categories that still hold models are
// rejected with a conflict by the store.
func (s *CategoryService) Delete(ctx context.Context, actor Actor, id string) (err error) {
	ctx, end := startSpan(ctx, "category.delete", attribute.String("category.id", id))
	defer end(&err)

	if err := requireAdmin(actor); err != nil {
		return err
	}
	if err := s.categories.Delete(ctx, id); err != nil {
		return err
	}
	cache.InvalidateCategories(ctx)
	return nil
}
