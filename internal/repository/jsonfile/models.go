package jsonfile

import (
	"context"
	"sort"

	"gorm.io/datatypes"

	"github.com/morroware/FEC-STL-sub000/internal/models"
	"github.com/morroware/FEC-STL-sub000/internal/observability"
	"github.com/morroware/FEC-STL-sub000/internal/repository"
)

type modelRepo struct {
	s   *Store
	log *observability.RepoLogger
}

func (st *state) modelIndex(id string) int {
	for i := range st.models {
		if st.models[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneModel(m *models.Model) models.Model {
	out := *m
	out.Tags = datatypes.NewJSONSlice(append([]string{}, m.Tags...))
	settings := make(map[string]string, len(m.Settings()))
	for k, v := range m.Settings() {
		settings[k] = v
	}
	out.PrintSettings = datatypes.NewJSONType(settings)
	out.Files = append([]models.ModelFile{}, m.Files...)
	out.Photos = append([]models.ModelPhoto{}, m.Photos...)
	out.Owner = nil
	out.CategoryRef = nil
	return out
}

// collect returns copies of the models accepted by keep, newest first.
func (r *modelRepo) collect(keep func(*models.Model) bool) []models.Model {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]models.Model, 0, len(r.s.st.models))
	for i := range r.s.st.models {
		if keep(&r.s.st.models[i]) {
			out = append(out, cloneModel(&r.s.st.models[i]))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *modelRepo) List(_ context.Context) ([]models.Model, error) {
	return r.collect(func(*models.Model) bool { return true }), nil
}

func (r *modelRepo) ListByUser(_ context.Context, userID string) ([]models.Model, error) {
	return r.collect(func(m *models.Model) bool { return m.UserID == userID }), nil
}

func (r *modelRepo) ListByCategory(_ context.Context, categoryID string) ([]models.Model, error) {
	return r.collect(func(m *models.Model) bool { return m.Category == categoryID }), nil
}

func (r *modelRepo) Search(_ context.Context, q repository.ModelQuery) ([]models.Model, error) {
	defer observability.TrackQuery(repository.BackendJSON, "search", "models")()

	ms := r.collect(func(m *models.Model) bool {
		if q.Category != "" && m.Category != q.Category {
			return false
		}
		return repository.MatchesQuery(m, q.Query)
	})
	repository.SortModels(ms, q.Sort)
	return ms, nil
}

func (r *modelRepo) Get(_ context.Context, id string) (*models.Model, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	i := r.s.st.modelIndex(id)
	if i < 0 {
		return nil, models.NewNotFoundError("Model", id)
	}
	m := cloneModel(&r.s.st.models[i])
	return &m, nil
}

// Create appends the model and bumps the category and owner counters in
// the same write.
func (r *modelRepo) Create(ctx context.Context, in repository.NewModel) (string, error) {
	m, err := repository.BuildModel(in, r.s.now())
	if err != nil {
		return "", err
	}
	err = r.s.update(ctx, func(st *state) (dirty, error) {
		owner := st.userIndex(m.UserID)
		if owner < 0 {
			return dirty{}, models.NewValidationError("Owner does not exist")
		}
		if !st.adjustCategory(m.Category, 1) {
			return dirty{}, models.NewValidationError("Category does not exist")
		}
		st.users[owner].ModelCount++
		st.models = append(st.models, *m)
		return dirty{models: true, categories: true, users: true}, nil
	})
	if err != nil {
		return "", err
	}
	r.log.LogCreate(ctx, map[string]interface{}{"model_id": m.ID, "category": m.Category, "files": m.FileCount})
	return m.ID, nil
}

func (r *modelRepo) Update(ctx context.Context, id string, in repository.ModelUpdate) error {
	err := r.s.update(ctx, func(st *state) (dirty, error) {
		i := st.modelIndex(id)
		if i < 0 {
			return dirty{}, models.NewNotFoundError("Model", id)
		}
		m := &st.models[i]
		oldCategory := m.Category
		if err := repository.ApplyModelUpdate(m, in, r.s.now()); err != nil {
			return dirty{}, err
		}
		d := dirty{models: true}
		if m.Category != oldCategory {
			if !st.adjustCategory(m.Category, 1) {
				return dirty{}, models.NewValidationError("Category does not exist")
			}
			st.adjustCategory(oldCategory, -1)
			d.categories = true
		}
		return d, nil
	})
	if err != nil {
		return err
	}
	r.log.LogUpdate(ctx, map[string]interface{}{"model_id": id})
	return nil
}

func (r *modelRepo) Delete(ctx context.Context, id string) error {
	var removed models.Model
	err := r.s.update(ctx, func(st *state) (dirty, error) {
		i := st.modelIndex(id)
		if i < 0 {
			return dirty{}, models.NewNotFoundError("Model", id)
		}
		removed = st.models[i]
		st.models = append(st.models[:i], st.models[i+1:]...)
		st.adjustCategory(removed.Category, -1)
		if owner := st.userIndex(removed.UserID); owner >= 0 {
			st.users[owner].ModelCount = max(st.users[owner].ModelCount-1, 0)
		}
		st.dropFavorites(map[string]struct{}{id: {}})
		return dirty{models: true, categories: true, users: true}, nil
	})
	if err != nil {
		return err
	}
	if r.s.files != nil {
		r.s.files.Remove(ctx, removed.StoredFiles()...)
	}
	r.log.LogDelete(ctx, map[string]interface{}{"model_id": id, "category": removed.Category})
	return nil
}

func (r *modelRepo) IncrementStat(ctx context.Context, id string, stat repository.Stat) error {
	if _, err := repository.ParseStat(string(stat)); err != nil {
		return err
	}
	return r.s.update(ctx, func(st *state) (dirty, error) {
		i := st.modelIndex(id)
		if i < 0 {
			return dirty{}, models.NewNotFoundError("Model", id)
		}
		m := &st.models[i]
		d := dirty{models: true}
		switch stat {
		case repository.StatDownloads:
			m.Downloads++
			if owner := st.userIndex(m.UserID); owner >= 0 {
				st.users[owner].DownloadCount++
				d.users = true
			}
		case repository.StatLikes:
			m.Likes++
		case repository.StatViews:
			m.Views++
		}
		return d, nil
	})
}
