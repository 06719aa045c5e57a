// Package jsonfile is the flat-file Store used when no relational database
// is configured or reachable. State lives in users.json, models.json and
// categories.json; every mutation rewrites the affected files atomically.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/morroware/FEC-STL-sub000/internal/models"
	"github.com/morroware/FEC-STL-sub000/internal/observability"
	"github.com/morroware/FEC-STL-sub000/internal/repository"
)

const (
	usersFile      = "users.json"
	modelsFile     = "models.json"
	categoriesFile = "categories.json"
)

// userRecord is the on-disk form of a user. Unlike the API form it keeps
// the password hash.
type userRecord struct {
	models.User
	Password string `json:"password"`
}

func (r userRecord) toUser() models.User {
	u := r.User
	u.Password = r.Password
	u.Favorites = append([]string{}, r.Favorites...)
	return u
}

type state struct {
	users      []userRecord
	models     []models.Model
	categories []models.Category
}

// dirty marks which files a mutation must rewrite.
type dirty struct {
	users, models, categories bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store keeps the whole catalog in memory behind one lock and mirrors it
// to JSON files.
type Store struct {
	mu    sync.RWMutex
	dir   string
	files repository.FileRemover
	now   func() time.Time
	st    state

	users      *userRepo
	categories *categoryRepo
	models     *modelRepo
}

var _ repository.Store = (*Store)(nil)

// Open loads the catalog from dir, creating the directory when missing,
// and recounts the denormalized counters.
func Open(ctx context.Context, dir string, files repository.FileRemover, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &Store{
		dir:   dir,
		files: files,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.users = &userRepo{s: s, log: observability.NewRepoLogger(repository.BackendJSON, "users")}
	s.categories = &categoryRepo{s: s, log: observability.NewRepoLogger(repository.BackendJSON, "categories")}
	s.models = &modelRepo{s: s, log: observability.NewRepoLogger(repository.BackendJSON, "models")}

	if err := readJSON(filepath.Join(dir, usersFile), &s.st.users); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, modelsFile), &s.st.models); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, categoriesFile), &s.st.categories); err != nil {
		return nil, err
	}
	for i := range s.st.models {
		s.st.models[i].Recalculate()
	}

	if err := s.Reconcile(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Users() repository.UserRepository           { return s.users }
func (s *Store) Categories() repository.CategoryRepository { return s.categories }
func (s *Store) Models() repository.ModelRepository         { return s.models }
func (s *Store) Backend() string                            { return repository.BackendJSON }
func (s *Store) Close() error                               { return nil }

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

// Ping checks that the data directory is still accessible.
func (s *Store) Ping(_ context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.dir)
	}
	return nil
}

func (s *Store) Stats(_ context.Context) (*models.Stats, error) {
	defer observability.TrackQuery(repository.BackendJSON, "stats", "models")()
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &models.Stats{
		TotalModels:     int64(len(s.st.models)),
		TotalUsers:      int64(len(s.st.users)),
		TotalCategories: int64(len(s.st.categories)),
	}
	for _, m := range s.st.models {
		stats.TotalDownloads += int64(m.Downloads)
	}
	return stats, nil
}

// Reconcile recomputes category counts and user model counts from the
// models and rewrites the files whose counters drifted.
func (s *Store) Reconcile(ctx context.Context) error {
	return s.update(ctx, func(st *state) (dirty, error) {
		var d dirty
		perCategory := make(map[string]int)
		perUser := make(map[string]int)
		for _, m := range st.models {
			perCategory[m.Category]++
			perUser[m.UserID]++
		}
		for i := range st.categories {
			if n := perCategory[st.categories[i].ID]; st.categories[i].Count != n {
				st.categories[i].Count = n
				d.categories = true
			}
		}
		for i := range st.users {
			if n := perUser[st.users[i].ID]; st.users[i].ModelCount != n {
				st.users[i].ModelCount = n
				d.users = true
			}
		}
		return d, nil
	})
}

// update runs fn against a private copy of the state and swaps it in only
// after every dirty file was written. A failed write leaves memory as it
// was; counters that drift on disk are repaired by Reconcile on next open.
func (s *Store) update(ctx context.Context, fn func(st *state) (dirty, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.st.clone()
	d, err := fn(&next)
	if err != nil {
		return err
	}
	if d.models {
		if err := writeJSON(filepath.Join(s.dir, modelsFile), next.models); err != nil {
			return persistError(ctx, err)
		}
	}
	if d.categories {
		if err := writeJSON(filepath.Join(s.dir, categoriesFile), next.categories); err != nil {
			return persistError(ctx, err)
		}
	}
	if d.users {
		if err := writeJSON(filepath.Join(s.dir, usersFile), next.users); err != nil {
			return persistError(ctx, err)
		}
	}
	s.st = next
	return nil
}

func persistError(ctx context.Context, err error) error {
	observability.GlobalLogger.ErrorContext(ctx, "json store write failed", "error", err)
	return models.NewInternalError(err)
}

func (st state) clone() state {
	out := state{
		users:      make([]userRecord, len(st.users)),
		models:     make([]models.Model, len(st.models)),
		categories: append([]models.Category(nil), st.categories...),
	}
	for i, u := range st.users {
		u.Favorites = append([]string{}, u.Favorites...)
		out.users[i] = u
	}
	for i := range st.models {
		out.models[i] = cloneModel(&st.models[i])
	}
	return out
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeJSON replaces path with the encoding of v via a temp file and rename.
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", filepath.Base(path), err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("chmod %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmpName, path)
}
