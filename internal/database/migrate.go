package database

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Migration is one versioned postgres schema change with its rollback.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

func (m Migration) String() string {
	return fmt.Sprintf("%06d_%s", m.Version, m.Name)
}

//go:embed migrations/*.sql
var migrationFS embed.FS

var upFile = regexp.MustCompile(`^(\d{6})_([a-z0-9_]+)\.up\.sql$`)

// LoadMigrations reads NNNNNN_name.up.sql files and their .down.sql pairs
// from the migrations directory of fsys, ordered by version. A badly named
// file or a missing rollback is an error.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var out []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		match := upFile.FindStringSubmatch(name)
		if match == nil {
			return nil, fmt.Errorf("migration %s does not match NNNNNN_name.up.sql", name)
		}
		version, _ := strconv.Atoi(match[1])
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %d", prev, name, version)
		}
		seen[version] = name

		up, err := fs.ReadFile(fsys, path.Join("migrations", name))
		if err != nil {
			return nil, err
		}
		downName := match[1] + "_" + match[2] + ".down.sql"
		down, err := fs.ReadFile(fsys, path.Join("migrations", downName))
		if err != nil {
			return nil, fmt.Errorf("migration %s has no rollback: %w", name, err)
		}
		out = append(out, Migration{Version: version, Name: match[2], Up: string(up), Down: string(down)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

var embedded = sync.OnceValues(func() ([]Migration, error) {
	return LoadMigrations(migrationFS)
})

// GetMigrations returns the embedded migrations in version order.
func GetMigrations() []Migration {
	all, err := embedded()
	if err != nil {
		// The embedded set is fixed at build time and covered by tests.
		panic(err)
	}
	return all
}

// GetMigrationByVersion returns the embedded migration with version, or nil.
func GetMigrationByVersion(version int) *Migration {
	for _, m := range GetMigrations() {
		if m.Version == version {
			return &m
		}
	}
	return nil
}
