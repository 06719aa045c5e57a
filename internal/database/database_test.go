package database

import (
	"context"
	"net"
	"path/filepath"
	"testing"

	"github.com/morroware/FEC-STL-sub000/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestConfigurePool(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	cfg := &config.Config{DBType: DialectPostgres, DBMaxOpenConns: 10, DBMaxIdleConns: 5}
	require.NoError(t, configurePool(db, cfg))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 10, sqlDB.Stats().MaxOpenConnections)
}

func TestConfigurePool_SQLiteSingleWriter(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, configurePool(db, &config.Config{DBType: DialectSQLite, DBMaxOpenConns: 25}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestDialector(t *testing.T) {
	base := config.Config{
		DBHost: "db.internal", DBPort: "5432", DBUser: "cat", DBPassword: "pw", DBName: "fecstl",
	}

	t.Run("postgres", func(t *testing.T) {
		cfg := base
		cfg.DBType = DialectPostgres
		d, err := Dialector(&cfg)
		require.NoError(t, err)
		pg, ok := d.(*postgres.Dialector)
		require.True(t, ok)
		assert.Contains(t, pg.DSN, "host=db.internal")
		assert.Contains(t, pg.DSN, "sslmode=disable")
	})

	t.Run("mysql reports matched rows", func(t *testing.T) {
		cfg := base
		cfg.DBType = DialectMySQL
		cfg.DBPort = "3306"
		d, err := Dialector(&cfg)
		require.NoError(t, err)
		my, ok := d.(*mysql.Dialector)
		require.True(t, ok)
		assert.Contains(t, my.DSN, "tcp(db.internal:3306)/fecstl")
		assert.Contains(t, my.DSN, "clientFoundRows=true")
		assert.Contains(t, my.DSN, "parseTime=True")
	})

	t.Run("sqlite creates parent dir", func(t *testing.T) {
		cfg := base
		cfg.DBType = DialectSQLite
		cfg.DBPath = filepath.Join(t.TempDir(), "nested", "catalog.db")
		d, err := Dialector(&cfg)
		require.NoError(t, err)
		assert.DirExists(t, filepath.Dir(cfg.DBPath))
		assert.Equal(t, "sqlite", d.Name())
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := base
		cfg.DBType = "oracle"
		_, err := Dialector(&cfg)
		assert.ErrorContains(t, err, "unsupported DB_TYPE")
	})
}

func TestProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	cfg := &config.Config{DBType: DialectPostgres, DBHost: host, DBPort: port, DBProbeTimeout: 500}
	assert.NoError(t, Probe(context.Background(), cfg))

	require.NoError(t, ln.Close())
	assert.Error(t, Probe(context.Background(), cfg))

	assert.NoError(t, Probe(context.Background(), &config.Config{DBType: DialectSQLite}))
	assert.Error(t, Probe(context.Background(), &config.Config{DBType: DialectMySQL}))
}

func TestConnectSQLiteAndApplySchema(t *testing.T) {
	cfg := &config.Config{
		DBType: DialectSQLite,
		DBPath: filepath.Join(t.TempDir(), "catalog.db"),
		Env:    "test",
	}

	db, err := Connect(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	require.NoError(t, ApplySchema(context.Background(), db, cfg))
	for _, table := range []string{"users", "categories", "models", "model_files", "model_photos", "favorites"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}
