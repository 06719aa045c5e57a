package jsonfile

import (
	"context"
	"sort"
	"strings"

	"github.com/morroware/FEC-STL-sub000/internal/models"
	"github.com/morroware/FEC-STL-sub000/internal/observability"
	"github.com/morroware/FEC-STL-sub000/internal/repository"
)

type categoryRepo struct {
	s   *Store
	log *observability.RepoLogger
}

func (st *state) categoryIndex(id string) int {
	for i := range st.categories {
		if st.categories[i].ID == id {
			return i
		}
	}
	return -1
}

// adjustCategory adds delta to a category count, clamping at zero. It
// reports whether the category exists.
func (st *state) adjustCategory(id string, delta int) bool {
	i := st.categoryIndex(id)
	if i < 0 {
		return false
	}
	st.categories[i].Count = max(st.categories[i].Count+delta, 0)
	return true
}

func (r *categoryRepo) List(_ context.Context) ([]models.Category, error) {
	r.s.mu.RLock()
	cats := append([]models.Category(nil), r.s.st.categories...)
	r.s.mu.RUnlock()

	sort.SliceStable(cats, func(i, j int) bool {
		a, b := strings.ToLower(cats[i].Name), strings.ToLower(cats[j].Name)
		if a == b {
			return cats[i].ID < cats[j].ID
		}
		return a < b
	})
	return cats, nil
}

func (r *categoryRepo) Get(_ context.Context, id string) (*models.Category, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	i := r.s.st.categoryIndex(id)
	if i < 0 {
		return nil, models.NewNotFoundError("Category", id)
	}
	cat := r.s.st.categories[i]
	return &cat, nil
}

func (r *categoryRepo) Create(ctx context.Context, in repository.NewCategory) (*models.Category, error) {
	var created models.Category
	err := r.s.update(ctx, func(st *state) (dirty, error) {
		id, err := repository.UniqueSlug(in.Name, func(candidate string) (bool, error) {
			return st.categoryIndex(candidate) >= 0, nil
		})
		if err != nil {
			return dirty{}, err
		}
		cat, err := repository.BuildCategory(id, in, r.s.now())
		if err != nil {
			return dirty{}, err
		}
		st.categories = append(st.categories, *cat)
		created = *cat
		return dirty{categories: true}, nil
	})
	if err != nil {
		return nil, err
	}
	r.log.LogCreate(ctx, map[string]interface{}{"category_id": created.ID})
	return &created, nil
}

func (r *categoryRepo) Update(ctx context.Context, id string, in repository.CategoryUpdate) error {
	err := r.s.update(ctx, func(st *state) (dirty, error) {
		i := st.categoryIndex(id)
		if i < 0 {
			return dirty{}, models.NewNotFoundError("Category", id)
		}
		if err := repository.ApplyCategoryUpdate(&st.categories[i], in, r.s.now()); err != nil {
			return dirty{}, err
		}
		return dirty{categories: true}, nil
	})
	if err != nil {
		return err
	}
	r.log.LogUpdate(ctx, map[string]interface{}{"category_id": id})
	return nil
}

func (r *categoryRepo) Delete(ctx context.Context, id string) error {
	err := r.s.update(ctx, func(st *state) (dirty, error) {
		i := st.categoryIndex(id)
		if i < 0 {
			return dirty{}, models.NewNotFoundError("Category", id)
		}
		referenced := st.categories[i].Count > 0
		for j := range st.models {
			if st.models[j].Category == id {
				referenced = true
				break
			}
		}
		if referenced {
			return dirty{}, models.NewConflictError("Category still has models")
		}
		st.categories = append(st.categories[:i], st.categories[i+1:]...)
		return dirty{categories: true}, nil
	})
	if err != nil {
		return err
	}
	r.log.LogDelete(ctx, map[string]interface{}{"category_id": id})
	return nil
}

func (r *categoryRepo) AdjustCount(ctx context.Context, id string, delta int) error {
	return r.s.update(ctx, func(st *state) (dirty, error) {
		if !st.adjustCategory(id, delta) {
			return dirty{}, models.NewNotFoundError("Category", id)
		}
		return dirty{categories: true}, nil
	})
}
