package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/morroware/FEC-STL-sub000/internal/models"
	"github.com/morroware/FEC-STL-sub000/internal/observability"
)

type categoryRepository struct {
	store *gormStore
	log   *observability.RepoLogger
}

func (r *categoryRepository) db(ctx context.Context) *gorm.DB {
	return r.store.db.WithContext(ctx)
}

func (r *categoryRepository) List(ctx context.Context) ([]models.Category, error) {
	defer observability.TrackQuery(BackendGorm, "list", "categories")()

	var cats []models.Category
	if err := r.db(ctx).Order("LOWER(name) ASC").Order("id ASC").Find(&cats).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return cats, nil
}

func (r *categoryRepository) Get(ctx context.Context, id string) (*models.Category, error) {
	defer observability.TrackQuery(BackendGorm, "get", "categories")()

	var cat models.Category
	if err := r.db(ctx).First(&cat, "id = ?", id).Error; err != nil {
		return nil, mapError(err, "Category", id)
	}
	return &cat, nil
}

func (r *categoryRepository) Create(ctx context.Context, in NewCategory) (*models.Category, error) {
	defer observability.TrackQuery(BackendGorm, "create", "categories")()

	var created *models.Category
	err := r.db(ctx).Transaction(func(tx *gorm.DB) error {
		id, err := UniqueSlug(in.Name, func(candidate string) (bool, error) {
			var n int64
			err := tx.Model(&models.Category{}).Where("id = ?", candidate).Count(&n).Error
			return n > 0, err
		})
		if err != nil {
			return err
		}
		cat, err := BuildCategory(id, in, r.store.now())
		if err != nil {
			return err
		}
		if err := tx.Create(cat).Error; err != nil {
			return err
		}
		created = cat
		return nil
	})
	if err != nil {
		return nil, mapError(err, "Category", in.Name)
	}
	r.log.LogCreate(ctx, map[string]interface{}{"category_id": created.ID})
	return created, nil
}

func (r *categoryRepository) Update(ctx context.Context, id string, in CategoryUpdate) error {
	defer observability.TrackQuery(BackendGorm, "update", "categories")()

	err := r.db(ctx).Transaction(func(tx *gorm.DB) error {
		var cat models.Category
		if err := tx.First(&cat, "id = ?", id).Error; err != nil {
			return err
		}
		if err := ApplyCategoryUpdate(&cat, in, r.store.now()); err != nil {
			return err
		}
		return tx.Model(&cat).Select("name", "icon", "description", "updated_at").Updates(&cat).Error
	})
	if err != nil {
		return mapError(err, "Category", id)
	}
	r.log.LogUpdate(ctx, map[string]interface{}{"category_id": id})
	return nil
}

// Delete refuses to remove a category that models still reference.
func (r *categoryRepository) Delete(ctx context.Context, id string) error {
	defer observability.TrackQuery(BackendGorm, "delete", "categories")()

	err := r.db(ctx).Transaction(func(tx *gorm.DB) error {
		var cat models.Category
		if err := tx.First(&cat, "id = ?", id).Error; err != nil {
			return err
		}
		var referenced int64
		if err := tx.Model(&models.Model{}).Where("category = ?", id).Count(&referenced).Error; err != nil {
			return err
		}
		if cat.Count > 0 || referenced > 0 {
			return models.NewConflictError("Category still has models")
		}
		return tx.Delete(&cat).Error
	})
	if err != nil {
		return mapError(err, "Category", id)
	}
	r.log.LogDelete(ctx, map[string]interface{}{"category_id": id})
	return nil
}

func (r *categoryRepository) AdjustCount(ctx context.Context, id string, delta int) error {
	found, err := adjustCounter(r.db(ctx), "categories", "count", id, delta)
	if err != nil {
		return models.NewInternalError(err)
	}
	if !found {
		return models.NewNotFoundError("Category", id)
	}
	return nil
}
