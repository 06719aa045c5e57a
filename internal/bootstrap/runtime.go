// Package bootstrap selects the storage backend and prepares the catalog
// before the server starts taking requests.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"path/filepath"

	"gorm.io/gorm"

	"github.com/morroware/FEC-STL-sub000/internal/config"
	"github.com/morroware/FEC-STL-sub000/internal/database"
	"github.com/morroware/FEC-STL-sub000/internal/middleware"
	"github.com/morroware/FEC-STL-sub000/internal/models"
	"github.com/morroware/FEC-STL-sub000/internal/observability"
	"github.com/morroware/FEC-STL-sub000/internal/repository"
	"github.com/morroware/FEC-STL-sub000/internal/repository/jsonfile"
	"github.com/morroware/FEC-STL-sub000/internal/seed"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedCategories overrides cfg.SeedDefaultCategories when set.
	SeedCategories *bool
	// SkipAdmin disables the first admin account bootstrap.
	SkipAdmin bool
}

// OpenStore returns the relational store when DB_TYPE names a reachable
// database and the JSON file store otherwise. The choice holds for the
// lifetime of the process.
func OpenStore(ctx context.Context, cfg *config.Config, files repository.FileRemover) (repository.Store, error) {
	var store repository.Store
	switch cfg.DBType {
	case "", repository.BackendJSON:
	case database.DialectPostgres, database.DialectMySQL, database.DialectSQLite:
		db, err := openDatabase(ctx, cfg)
		if err == nil {
			store = repository.NewStore(db, files)
			break
		}
		middleware.Logger.Warn("Relational database unavailable, using JSON file storage",
			slog.String("dialect", cfg.DBType),
			slog.String("error", err.Error()),
		)
	default:
		middleware.Logger.Warn("Unknown DB_TYPE, using JSON file storage", slog.String("db_type", cfg.DBType))
	}

	if store == nil {
		js, err := jsonfile.Open(ctx, cfg.DataDir, files)
		if err != nil {
			return nil, fmt.Errorf("open json store in %s: %w", filepath.Clean(cfg.DataDir), err)
		}
		store = js
	}

	observability.MarkBackend(store.Backend())
	middleware.Logger.Info("Storage backend selected", slog.String("backend", store.Backend()))
	return store, nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	if err := database.Probe(ctx, cfg); err != nil {
		return nil, err
	}
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.ApplySchema(ctx, db, cfg); err != nil {
		_ = database.Close(db)
		return nil, err
	}
	sqlDB, err := db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// InitRuntime opens the store and runs the startup bootstrap steps on it.
func InitRuntime(ctx context.Context, cfg *config.Config, files repository.FileRemover, opts Options) (repository.Store, error) {
	store, err := OpenStore(ctx, cfg, files)
	if err != nil {
		return nil, err
	}

	if !opts.SkipAdmin {
		if err := EnsureAdmin(ctx, cfg, store.Users()); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to bootstrap admin account: %w", err)
		}
	}

	seedCategories := cfg.SeedDefaultCategories
	if opts.SeedCategories != nil {
		seedCategories = *opts.SeedCategories
	}
	if seedCategories {
		n, err := seed.Categories(ctx, store.Categories())
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to seed default categories: %w", err)
		}
		if n > 0 {
			log.Printf("seeded %d default categories", n)
		}
	}

	return store, nil
}

// EnsureAdmin creates the first admin account when no user exists yet.
// Production requires ADMIN_PASSWORD.
func EnsureAdmin(ctx context.Context, cfg *config.Config, users repository.UserRepository) error {
	existing, err := users.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	password := cfg.BootstrapAdminPassword()
	if password == "" {
		return errors.New("ADMIN_PASSWORD must be set to create the first admin in production")
	}

	_, err = users.Create(ctx, repository.NewUser{
		Username: cfg.AdminUsername,
		Email:    cfg.AdminEmail,
		Password: password,
		IsAdmin:  true,
	})
	if models.IsConflict(err) {
		// Another process bootstrapped between List and Create.
		return nil
	}
	if err != nil {
		return err
	}
	log.Printf("admin account %q bootstrapped", cfg.AdminUsername)
	if cfg.AdminPassword == "" {
		log.Printf("WARNING: admin %q uses the default password, change it after first login", cfg.AdminUsername)
	}
	return nil
}
