package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/morroware/FEC-STL-sub000/internal/models"
	"github.com/morroware/FEC-STL-sub000/internal/observability"
)

type modelRepository struct {
	store *gormStore
	log   *observability.RepoLogger
}

func byPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// query returns a model query with files and photos preloaded in order.
func (r *modelRepository) query(ctx context.Context) *gorm.DB {
	return r.store.db.WithContext(ctx).
		Preload("Files", byPosition).
		Preload("Photos", byPosition)
}

func (r *modelRepository) List(ctx context.Context) ([]models.Model, error) {
	return r.find(ctx, "list", r.query(ctx))
}

func (r *modelRepository) ListByUser(ctx context.Context, userID string) ([]models.Model, error) {
	return r.find(ctx, "list_by_user", r.query(ctx).Where("user_id = ?", userID))
}

func (r *modelRepository) ListByCategory(ctx context.Context, categoryID string) ([]models.Model, error) {
	return r.find(ctx, "list_by_category", r.query(ctx).Where("category = ?", categoryID))
}

func (r *modelRepository) find(ctx context.Context, op string, q *gorm.DB) ([]models.Model, error) {
	defer observability.TrackQuery(BackendGorm, op, "models")()

	var ms []models.Model
	if err := q.Order("created_at DESC").Order("id DESC").Find(&ms).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return ms, nil
}

// Search filters by category in SQL and matches text in memory. Tags are
// stored JSON-encoded and LOWER only folds ASCII on some dialects, so a SQL
// LIKE would drop rows the JSON backend returns.
func (r *modelRepository) Search(ctx context.Context, q ModelQuery) ([]models.Model, error) {
	db := r.query(ctx)
	if q.Category != "" {
		db = db.Where("category = ?", q.Category)
	}

	ms, err := r.find(ctx, "search", db)
	if err != nil {
		return nil, err
	}
	if term := strings.TrimSpace(q.Query); term != "" {
		filtered := ms[:0]
		for i := range ms {
			if MatchesQuery(&ms[i], term) {
				filtered = append(filtered, ms[i])
			}
		}
		ms = filtered
	}
	SortModels(ms, q.Sort)
	return ms, nil
}

func (r *modelRepository) Get(ctx context.Context, id string) (*models.Model, error) {
	defer observability.TrackQuery(BackendGorm, "get", "models")()

	var m models.Model
	if err := r.query(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, mapError(err, "Model", id)
	}
	return &m, nil
}

// Create inserts the model with its files and photos and bumps the
// category and owner counters in the same transaction.
func (r *modelRepository) Create(ctx context.Context, in NewModel) (string, error) {
	defer observability.TrackQuery(BackendGorm, "create", "models")()

	m, err := BuildModel(in, r.store.now())
	if err != nil {
		return "", err
	}

	err = r.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&models.User{}, "id = ?", m.UserID).Error; err != nil {
			return referenceError(err, "Owner does not exist")
		}
		if err := tx.Select("id").First(&models.Category{}, "id = ?", m.Category).Error; err != nil {
			return referenceError(err, "Category does not exist")
		}
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		if _, err := adjustCounter(tx, "categories", "count", m.Category, 1); err != nil {
			return err
		}
		_, err := adjustCounter(tx, "users", "model_count", m.UserID, 1)
		return err
	})
	if err != nil {
		r.log.LogError(ctx, err, "create")
		return "", mapError(err, "Model", m.Title)
	}
	r.log.LogCreate(ctx, map[string]interface{}{"model_id": m.ID, "category": m.Category, "files": m.FileCount})
	return m.ID, nil
}

func referenceError(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewValidationError(message)
	}
	return err
}

// Update applies the merge and, on a category change, moves one count from
// the old category to the new one inside the same transaction.
func (r *modelRepository) Update(ctx context.Context, id string, in ModelUpdate) error {
	defer observability.TrackQuery(BackendGorm, "update", "models")()

	err := r.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.Model
		if err := tx.Preload("Files").First(&m, "id = ?", id).Error; err != nil {
			return err
		}
		oldCategory := m.Category
		if err := ApplyModelUpdate(&m, in, r.store.now()); err != nil {
			return err
		}

		if m.Category != oldCategory {
			if err := tx.Select("id").First(&models.Category{}, "id = ?", m.Category).Error; err != nil {
				return referenceError(err, "Category does not exist")
			}
			if _, err := adjustCounter(tx, "categories", "count", oldCategory, -1); err != nil {
				return err
			}
			if _, err := adjustCounter(tx, "categories", "count", m.Category, 1); err != nil {
				return err
			}
		}

		return tx.Model(&models.Model{ID: m.ID}).
			Omit(clause.Associations).
			Select("title", "description", "category", "tags", "license", "print_settings", "primary_display", "featured", "updated_at").
			Updates(&m).Error
	})
	if err != nil {
		return mapError(err, "Model", id)
	}
	r.log.LogUpdate(ctx, map[string]interface{}{"model_id": id})
	return nil
}

// Delete removes the model rows and counters in one transaction, then the
// physical files. A second delete reports not found.
func (r *modelRepository) Delete(ctx context.Context, id string) error {
	defer observability.TrackQuery(BackendGorm, "delete", "models")()

	var m models.Model
	err := r.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Files").Preload("Photos").First(&m, "id = ?", id).Error; err != nil {
			return err
		}
		return deleteModelRows(tx, &m, true)
	})
	if err != nil {
		return mapError(err, "Model", id)
	}

	if r.store.files != nil {
		r.store.files.Remove(ctx, m.StoredFiles()...)
	}
	r.log.LogDelete(ctx, map[string]interface{}{"model_id": id, "category": m.Category})
	return nil
}

// deleteModelRows deletes a loaded model with its child rows and
// decrements its category. When adjustOwner is set the owner's model_count
// is decremented as well.
func deleteModelRows(tx *gorm.DB, m *models.Model, adjustOwner bool) error {
	if err := tx.Where("model_id = ?", m.ID).Delete(&models.Favorite{}).Error; err != nil {
		return err
	}
	if err := tx.Where("model_id = ?", m.ID).Delete(&models.ModelFile{}).Error; err != nil {
		return err
	}
	if err := tx.Where("model_id = ?", m.ID).Delete(&models.ModelPhoto{}).Error; err != nil {
		return err
	}
	res := tx.Delete(&models.Model{}, "id = ?", m.ID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	if _, err := adjustCounter(tx, "categories", "count", m.Category, -1); err != nil {
		return err
	}
	if adjustOwner {
		if _, err := adjustCounter(tx, "users", "model_count", m.UserID, -1); err != nil {
			return err
		}
	}
	return nil
}

// IncrementStat adds one to a model counter. Downloads also count towards
// the owner's download_count.
func (r *modelRepository) IncrementStat(ctx context.Context, id string, stat Stat) error {
	if _, err := ParseStat(string(stat)); err != nil {
		return err
	}
	defer observability.TrackQuery(BackendGorm, "increment_"+string(stat), "models")()

	err := r.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.Model
		if err := tx.Select("id", "user_id").First(&m, "id = ?", id).Error; err != nil {
			return err
		}
		column := string(stat)
		if err := tx.Model(&models.Model{}).Where("id = ?", id).
			UpdateColumn(column, gorm.Expr(column+" + ?", 1)).Error; err != nil {
			return err
		}
		if stat == StatDownloads {
			_, err := adjustCounter(tx, "users", "download_count", m.UserID, 1)
			return err
		}
		return nil
	})
	return mapError(err, "Model", id)
}
