package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/morroware/FEC-STL-sub000/internal/models"
	"github.com/morroware/FEC-STL-sub000/internal/observability"
)

type userRepository struct {
	store *gormStore
	log   *observability.RepoLogger
}

func (r *userRepository) db(ctx context.Context) *gorm.DB {
	return r.store.db.WithContext(ctx)
}

func (r *userRepository) List(ctx context.Context) ([]models.User, error) {
	defer observability.TrackQuery(BackendGorm, "list", "users")()

	var users []models.User
	if err := r.db(ctx).Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	var favs []models.Favorite
	if err := r.db(ctx).Order("created_at ASC").Find(&favs).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	byUser := make(map[string][]string, len(users))
	for _, f := range favs {
		byUser[f.UserID] = append(byUser[f.UserID], f.ModelID)
	}
	for i := range users {
		users[i].Favorites = byUser[users[i].ID]
		if users[i].Favorites == nil {
			users[i].Favorites = []string{}
		}
	}
	return users, nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.first(ctx, "User", id, "id = ?", id)
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	name := strings.ToLower(strings.TrimSpace(username))
	return r.first(ctx, "User", username, "LOWER(username) = ?", name)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	addr := strings.ToLower(strings.TrimSpace(email))
	return r.first(ctx, "User", email, "LOWER(email) = ?", addr)
}

func (r *userRepository) first(ctx context.Context, resource string, label interface{}, query string, args ...interface{}) (*models.User, error) {
	defer observability.TrackQuery(BackendGorm, "get", "users")()

	var user models.User
	if err := r.db(ctx).Where(query, args...).First(&user).Error; err != nil {
		return nil, mapError(err, resource, label)
	}
	favs, err := favoritesOf(r.db(ctx), user.ID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	user.Favorites = favs
	return &user, nil
}

func favoritesOf(db *gorm.DB, userID string) ([]string, error) {
	ids := []string{}
	err := db.Model(&models.Favorite{}).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Pluck("model_id", &ids).Error
	return ids, err
}

func (r *userRepository) Create(ctx context.Context, in NewUser) (string, error) {
	defer observability.TrackQuery(BackendGorm, "create", "users")()

	user, err := BuildUser(in, r.store.now())
	if err != nil {
		return "", err
	}

	err = r.db(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureUnique(tx, "", user.Username, user.Email); err != nil {
			return err
		}
		return tx.Create(user).Error
	})
	if err != nil {
		r.log.LogError(ctx, err, "create")
		return "", mapError(err, "User", user.Username)
	}
	r.log.LogCreate(ctx, map[string]interface{}{"user_id": user.ID, "username": user.Username})
	return user.ID, nil
}

// ensureUnique rejects a username or email already used by another user.
// Either value may be empty to skip that check.
func ensureUnique(tx *gorm.DB, selfID, username, email string) error {
	check := func(column, value, message string) error {
		if value == "" {
			return nil
		}
		q := tx.Model(&models.User{}).Where("LOWER("+column+") = ?", strings.ToLower(value))
		if selfID != "" {
			q = q.Where("id <> ?", selfID)
		}
		var n int64
		if err := q.Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return models.NewConflictError(message)
		}
		return nil
	}
	if err := check("username", username, "Username already taken"); err != nil {
		return err
	}
	return check("email", email, "Email already registered")
}

func (r *userRepository) Update(ctx context.Context, id string, in UserUpdate) error {
	defer observability.TrackQuery(BackendGorm, "update", "users")()

	err := r.db(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "id = ?", id).Error; err != nil {
			return err
		}
		if err := ApplyUserUpdate(&user, in, r.store.now()); err != nil {
			return err
		}
		if in.Email != nil {
			if err := ensureUnique(tx, id, "", user.Email); err != nil {
				return err
			}
		}
		return tx.Model(&user).
			Select("email", "avatar", "bio", "location", "is_admin", "updated_at").
			Updates(&user).Error
	})
	if err != nil {
		return mapError(err, "User", id)
	}
	r.log.LogUpdate(ctx, map[string]interface{}{"user_id": id})
	return nil
}

func (r *userRepository) SetPassword(ctx context.Context, id, password string) error {
	if password == "" {
		return models.NewValidationError("Password is required")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return models.NewInternalError(err)
	}
	res := r.db(ctx).Model(&models.User{}).Where("id = ?", id).
		Updates(map[string]interface{}{"password": hash, "updated_at": r.store.now()})
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", id)
	}
	r.log.LogUpdate(ctx, map[string]interface{}{"user_id": id, "field": "password"})
	return nil
}

// Delete removes the user, their favorites and every model they own in one
// transaction. Category counts are moved with the models. Physical files
// are removed after the commit.
func (r *userRepository) Delete(ctx context.Context, id string) error {
	defer observability.TrackQuery(BackendGorm, "delete", "users")()

	var orphaned []string
	err := r.db(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "id = ?", id).Error; err != nil {
			return err
		}

		var owned []models.Model
		if err := tx.Preload("Files").Preload("Photos").Where("user_id = ?", id).Find(&owned).Error; err != nil {
			return err
		}
		for i := range owned {
			if err := deleteModelRows(tx, &owned[i], false); err != nil {
				return err
			}
			orphaned = append(orphaned, owned[i].StoredFiles()...)
		}

		if err := tx.Where("user_id = ?", id).Delete(&models.Favorite{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, "id = ?", id).Error
	})
	if err != nil {
		return mapError(err, "User", id)
	}

	if r.store.files != nil && len(orphaned) > 0 {
		r.store.files.Remove(ctx, orphaned...)
	}
	r.log.LogDelete(ctx, map[string]interface{}{"user_id": id, "files_removed": len(orphaned)})
	return nil
}

func (r *userRepository) Authenticate(ctx context.Context, login, password string) (*models.User, error) {
	user, err := r.GetByUsername(ctx, login)
	if models.IsNotFound(err) {
		user, err = r.GetByEmail(ctx, login)
	}
	if models.IsNotFound(err) {
		return nil, RejectUnknownLogin(password)
	}
	if err != nil {
		return nil, err
	}
	if !CheckPassword(user.Password, password) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (r *userRepository) ToggleFavorite(ctx context.Context, userID, modelID string) error {
	defer observability.TrackQuery(BackendGorm, "toggle", "favorites")()

	added := false
	err := r.db(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&models.User{}, "id = ?", userID).Error; err != nil {
			return mapError(err, "User", userID)
		}
		if err := tx.Select("id").First(&models.Model{}, "id = ?", modelID).Error; err != nil {
			return mapError(err, "Model", modelID)
		}

		res := tx.Where("user_id = ? AND model_id = ?", userID, modelID).Delete(&models.Favorite{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		added = true
		return tx.Create(&models.Favorite{UserID: userID, ModelID: modelID, CreatedAt: r.store.now()}).Error
	})
	if err != nil {
		if !errors.As(err, new(*models.AppError)) {
			r.log.LogError(ctx, err, "toggle_favorite")
		}
		return mapError(err, "Favorite", modelID)
	}
	r.log.LogUpdate(ctx, map[string]interface{}{"user_id": userID, "model_id": modelID, "favorited": added})
	return nil
}
