package bootstrap

import (
	"bytes"
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/morroware/FEC-STL-sub000/internal/config"
	"github.com/morroware/FEC-STL-sub000/internal/models"
	"github.com/morroware/FEC-STL-sub000/internal/repository"
	"github.com/morroware/FEC-STL-sub000/internal/repository/jsonfile"
	"github.com/morroware/FEC-STL-sub000/internal/seed"
)

func TestMain(m *testing.M) {
	repository.PasswordCost = bcrypt.MinCost
	os.Exit(m.Run())
}

type noFiles struct{}

func (noFiles) Remove(context.Context, ...string) {}

// racingUsers looks empty but loses the create to another process.
type racingUsers struct {
	repository.UserRepository
	created int
}

func (r *racingUsers) List(context.Context) ([]models.User, error) { return nil, nil }

func (r *racingUsers) Create(context.Context, repository.NewUser) (string, error) {
	r.created++
	return "", models.NewConflictError("Username already taken")
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Env:            "test",
		DataDir:        filepath.Join(dir, "data"),
		DBPath:         filepath.Join(dir, "catalog.db"),
		DBHost:         "127.0.0.1",
		DBPort:         "1",
		DBProbeTimeout: 200,
		AdminUsername:  "admin",
		AdminEmail:     "admin@example.com",
	}
}

func TestOpenStore(t *testing.T) {
	tests := []struct {
		name    string
		dbType  string
		backend string
	}{
		{"default", "", repository.BackendJSON},
		{"json", "json", repository.BackendJSON},
		{"sqlite", "sqlite", repository.BackendGorm},
		{"unreachable postgres falls back", "postgres", repository.BackendJSON},
		{"unreachable mysql falls back", "mysql", repository.BackendJSON},
		{"unknown type falls back", "mongodb", repository.BackendJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.DBType = tt.dbType

			store, err := OpenStore(context.Background(), cfg, noFiles{})
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })

			assert.Equal(t, tt.backend, store.Backend())
			assert.NoError(t, store.Ping(context.Background()))
		})
	}
}

func TestOpenStore_JSONLivesInDataDir(t *testing.T) {
	cfg := testConfig(t)

	store, err := OpenStore(context.Background(), cfg, noFiles{})
	require.NoError(t, err)

	js, ok := store.(*jsonfile.Store)
	require.True(t, ok)
	assert.Equal(t, cfg.DataDir, js.Dir())
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()

	t.Run("creates the first admin with the development password", func(t *testing.T) {
		cfg := testConfig(t)
		store, err := jsonfile.Open(ctx, cfg.DataDir, noFiles{})
		require.NoError(t, err)

		require.NoError(t, EnsureAdmin(ctx, cfg, store.Users()))

		admin, err := store.Users().Authenticate(ctx, "admin", "admin123")
		require.NoError(t, err)
		assert.True(t, admin.IsAdmin)
		assert.Equal(t, "admin@example.com", admin.Email)
	})

	t.Run("leaves a populated user set alone", func(t *testing.T) {
		cfg := testConfig(t)
		store, err := jsonfile.Open(ctx, cfg.DataDir, noFiles{})
		require.NoError(t, err)
		_, err = store.Users().Create(ctx, repository.NewUser{Username: "maker", Email: "maker@example.com", Password: "secret1"})
		require.NoError(t, err)

		require.NoError(t, EnsureAdmin(ctx, cfg, store.Users()))

		users, err := store.Users().List(ctx)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.False(t, users[0].IsAdmin)
	})

	t.Run("production requires a password", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Env = "production"
		store, err := jsonfile.Open(ctx, cfg.DataDir, noFiles{})
		require.NoError(t, err)

		assert.Error(t, EnsureAdmin(ctx, cfg, store.Users()))

		cfg.AdminPassword = "a-strong-password"
		require.NoError(t, EnsureAdmin(ctx, cfg, store.Users()))
		_, err = store.Users().Authenticate(ctx, "admin@example.com", "a-strong-password")
		assert.NoError(t, err)
	})

	t.Run("lost race is not reported as bootstrapped", func(t *testing.T) {
		var buf bytes.Buffer
		log.SetOutput(&buf)
		t.Cleanup(func() { log.SetOutput(os.Stderr) })

		users := &racingUsers{}
		require.NoError(t, EnsureAdmin(ctx, testConfig(t), users))
		assert.Equal(t, 1, users.created)
		assert.NotContains(t, buf.String(), "bootstrapped")
		assert.NotContains(t, buf.String(), "default password")
	})

	t.Run("invalid admin username is rejected", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.AdminUsername = "root admin"
		store, err := jsonfile.Open(ctx, cfg.DataDir, noFiles{})
		require.NoError(t, err)

		err = EnsureAdmin(ctx, cfg, store.Users())
		assert.True(t, models.IsValidation(err), "got %v", err)
		users, err := store.Users().List(ctx)
		require.NoError(t, err)
		assert.Empty(t, users)
	})
}

func TestInitRuntime(t *testing.T) {
	ctx := context.Background()
	presets, err := seed.DefaultCategories()
	require.NoError(t, err)

	t.Run("seeds categories and admin", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.DBType = "sqlite"
		cfg.SeedDefaultCategories = true

		store, err := InitRuntime(ctx, cfg, noFiles{}, Options{})
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })

		cats, err := store.Categories().List(ctx)
		require.NoError(t, err)
		assert.Len(t, cats, len(presets))

		stats, err := store.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.TotalUsers)
	})

	t.Run("options override config", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.SeedDefaultCategories = true
		off := false

		store, err := InitRuntime(ctx, cfg, noFiles{}, Options{SeedCategories: &off, SkipAdmin: true})
		require.NoError(t, err)

		stats, err := store.Stats(ctx)
		require.NoError(t, err)
		assert.Zero(t, stats.TotalUsers)
		assert.Zero(t, stats.TotalCategories)
	})

	t.Run("restart keeps existing data", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.SeedDefaultCategories = true

		first, err := InitRuntime(ctx, cfg, noFiles{}, Options{})
		require.NoError(t, err)
		require.NoError(t, first.Close())

		second, err := InitRuntime(ctx, cfg, noFiles{}, Options{})
		require.NoError(t, err)
		stats, err := second.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.TotalUsers)
		assert.Equal(t, int64(len(presets)), stats.TotalCategories)
	})
}
