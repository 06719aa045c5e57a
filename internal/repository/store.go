// Package repository implements the data access layer for the application.
//
// Store is the single port every handler and service talks to. The gorm
// adapter in this package and the JSON-file adapter in repository/jsonfile
// implement it with identical semantics, so callers never know which one
// the process selected at startup.
package repository

import (
	"context"

	"github.com/morroware/FEC-STL-sub000/internal/models"
)

// Backend names reported by Store.Backend.
const (
	BackendGorm = "gorm"
	BackendJSON = "json"
)

// Store aggregates the per-entity repositories of one storage backend.
type Store interface {
	Users() UserRepository
	Categories() CategoryRepository
	Models() ModelRepository

	// Stats computes the catalog aggregates fresh on every call.
	Stats(ctx context.Context) (*models.Stats, error)
	// Reconcile recomputes the denormalized counters from the models.
	Reconcile(ctx context.Context) error
	Ping(ctx context.Context) error
	Backend() string
	Close() error
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	List(ctx context.Context) ([]models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, in NewUser) (string, error)
	Update(ctx context.Context, id string, in UserUpdate) error
	SetPassword(ctx context.Context, id, password string) error
	// Delete removes the user together with every model they own.
	Delete(ctx context.Context, id string) error
	Authenticate(ctx context.Context, login, password string) (*models.User, error)
	ToggleFavorite(ctx context.Context, userID, modelID string) error
}

// CategoryRepository defines persistence operations for categories.
type CategoryRepository interface {
	List(ctx context.Context) ([]models.Category, error)
	Get(ctx context.Context, id string) (*models.Category, error)
	Create(ctx context.Context, in NewCategory) (*models.Category, error)
	Update(ctx context.Context, id string, in CategoryUpdate) error
	Delete(ctx context.Context, id string) error
	AdjustCount(ctx context.Context, id string, delta int) error
}

// ModelRepository defines persistence operations for models.
type ModelRepository interface {
	List(ctx context.Context) ([]models.Model, error)
	Get(ctx context.Context, id string) (*models.Model, error)
	ListByUser(ctx context.Context, userID string) ([]models.Model, error)
	ListByCategory(ctx context.Context, categoryID string) ([]models.Model, error)
	Search(ctx context.Context, q ModelQuery) ([]models.Model, error)
	Create(ctx context.Context, in NewModel) (string, error)
	Update(ctx context.Context, id string, in ModelUpdate) error
	Delete(ctx context.Context, id string) error
	IncrementStat(ctx context.Context, id string, stat Stat) error
}

// FileRemover deletes stored physical files. Missing files are not errors.
type FileRemover interface {
	Remove(ctx context.Context, names ...string)
}
