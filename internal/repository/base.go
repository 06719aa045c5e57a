package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/morroware/FEC-STL-sub000/internal/models"
	"github.com/morroware/FEC-STL-sub000/internal/observability"
)

// Option configures a gorm-backed Store.
type Option func(*gormStore)

// WithClock overrides the time source used for created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *gormStore) { s.now = now }
}

type gormStore struct {
	db    *gorm.DB
	files FileRemover
	now   func() time.Time

	users      *userRepository
	categories *categoryRepository
	models     *modelRepository
}

// NewStore returns the relational Store backed by db. files removes the
// physical files of deleted models.
func NewStore(db *gorm.DB, files FileRemover, opts ...Option) Store {
	s := &gormStore{
		db:    db,
		files: files,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.users = &userRepository{store: s, log: observability.NewRepoLogger(BackendGorm, "users")}
	s.categories = &categoryRepository{store: s, log: observability.NewRepoLogger(BackendGorm, "categories")}
	s.models = &modelRepository{store: s, log: observability.NewRepoLogger(BackendGorm, "models")}
	return s
}

func (s *gormStore) Users() UserRepository           { return s.users }
func (s *gormStore) Categories() CategoryRepository { return s.categories }
func (s *gormStore) Models() ModelRepository         { return s.models }
func (s *gormStore) Backend() string                 { return BackendGorm }

func (s *gormStore) Stats(ctx context.Context) (*models.Stats, error) {
	defer observability.TrackQuery(BackendGorm, "stats", "models")()
	db := s.db.WithContext(ctx)

	var stats models.Stats
	if err := db.Model(&models.Model{}).Count(&stats.TotalModels).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := db.Model(&models.User{}).Count(&stats.TotalUsers).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := db.Model(&models.Category{}).Count(&stats.TotalCategories).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := db.Model(&models.Model{}).Select("COALESCE(SUM(downloads), 0)").Scan(&stats.TotalDownloads).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return &stats, nil
}

func (s *gormStore) Reconcile(ctx context.Context) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`UPDATE categories SET count = (SELECT COUNT(*) FROM models WHERE models.category = categories.id)`).Error; err != nil {
			return fmt.Errorf("recount categories: %w", err)
		}
		if err := tx.Exec(`UPDATE users SET model_count = (SELECT COUNT(*) FROM models WHERE models.user_id = users.id)`).Error; err != nil {
			return fmt.Errorf("recount users: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (s *gormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *gormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// adjustCounter adds delta to column of the row with id, clamping at zero.
// It reports whether the row exists.
func adjustCounter(tx *gorm.DB, table, column, id string, delta int) (bool, error) {
	expr := gorm.Expr(fmt.Sprintf("CASE WHEN %s + ? < 0 THEN 0 ELSE %s + ? END", column, column), delta, delta)
	res := tx.Table(table).Where("id = ?", id).UpdateColumn(column, expr)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// mapError converts gorm errors into AppErrors.
func mapError(err error, resource string, id interface{}) error {
	var appErr *models.AppError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return models.NewNotFoundError(resource, id)
	case isUniqueConstraintError(err):
		return models.NewConflictError(resource + " already exists")
	case isForeignKeyError(err):
		return models.NewConflictError(resource + " is still referenced")
	default:
		return models.NewInternalError(err)
	}
}

// isUniqueConstraintError checks if a DB error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "unique constraint")
}

func isForeignKeyError(err error) bool {
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "foreign key constraint")
}
