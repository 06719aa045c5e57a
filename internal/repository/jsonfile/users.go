package jsonfile

import (
	"context"
	"sort"
	"strings"

	"github.com/morroware/FEC-STL-sub000/internal/models"
	"github.com/morroware/FEC-STL-sub000/internal/observability"
	"github.com/morroware/FEC-STL-sub000/internal/repository"
)

type userRepo struct {
	s   *Store
	log *observability.RepoLogger
}

func (st *state) userIndex(id string) int {
	for i := range st.users {
		if st.users[i].ID == id {
			return i
		}
	}
	return -1
}

func (st *state) userIndexBy(match func(*userRecord) bool) int {
	for i := range st.users {
		if match(&st.users[i]) {
			return i
		}
	}
	return -1
}

func (st *state) conflictingUser(selfID, username, email string) error {
	for i := range st.users {
		u := &st.users[i]
		if u.ID == selfID {
			continue
		}
		if username != "" && strings.EqualFold(u.Username, username) {
			return models.NewConflictError("Username already taken")
		}
		if email != "" && strings.EqualFold(u.Email, email) {
			return models.NewConflictError("Email already registered")
		}
	}
	return nil
}

func (r *userRepo) List(_ context.Context) ([]models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	users := make([]models.User, 0, len(r.s.st.users))
	for _, rec := range r.s.st.users {
		users = append(users, rec.toUser())
	}
	sort.SliceStable(users, func(i, j int) bool { return users[i].CreatedAt.After(users[j].CreatedAt) })
	return users, nil
}

func (r *userRepo) get(label string, match func(*userRecord) bool) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	i := r.s.st.userIndexBy(match)
	if i < 0 {
		return nil, models.NewNotFoundError("User", label)
	}
	u := r.s.st.users[i].toUser()
	return &u, nil
}

func (r *userRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	return r.get(id, func(u *userRecord) bool { return u.ID == id })
}

func (r *userRepo) GetByUsername(_ context.Context, username string) (*models.User, error) {
	name := strings.TrimSpace(username)
	return r.get(username, func(u *userRecord) bool { return strings.EqualFold(u.Username, name) })
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	addr := strings.TrimSpace(email)
	return r.get(email, func(u *userRecord) bool { return strings.EqualFold(u.Email, addr) })
}

func (r *userRepo) Create(ctx context.Context, in repository.NewUser) (string, error) {
	user, err := repository.BuildUser(in, r.s.now())
	if err != nil {
		return "", err
	}
	err = r.s.update(ctx, func(st *state) (dirty, error) {
		if err := st.conflictingUser("", user.Username, user.Email); err != nil {
			return dirty{}, err
		}
		rec := userRecord{User: *user, Password: user.Password}
		rec.User.Password = ""
		st.users = append(st.users, rec)
		return dirty{users: true}, nil
	})
	if err != nil {
		return "", err
	}
	r.log.LogCreate(ctx, map[string]interface{}{"user_id": user.ID, "username": user.Username})
	return user.ID, nil
}

func (r *userRepo) Update(ctx context.Context, id string, in repository.UserUpdate) error {
	err := r.s.update(ctx, func(st *state) (dirty, error) {
		i := st.userIndex(id)
		if i < 0 {
			return dirty{}, models.NewNotFoundError("User", id)
		}
		u := &st.users[i].User
		if err := repository.ApplyUserUpdate(u, in, r.s.now()); err != nil {
			return dirty{}, err
		}
		if in.Email != nil {
			if err := st.conflictingUser(id, "", u.Email); err != nil {
				return dirty{}, err
			}
		}
		return dirty{users: true}, nil
	})
	if err != nil {
		return err
	}
	r.log.LogUpdate(ctx, map[string]interface{}{"user_id": id})
	return nil
}

func (r *userRepo) SetPassword(ctx context.Context, id, password string) error {
	if password == "" {
		return models.NewValidationError("Password is required")
	}
	hash, err := repository.HashPassword(password)
	if err != nil {
		return models.NewInternalError(err)
	}
	err = r.s.update(ctx, func(st *state) (dirty, error) {
		i := st.userIndex(id)
		if i < 0 {
			return dirty{}, models.NewNotFoundError("User", id)
		}
		st.users[i].Password = hash
		st.users[i].UpdatedAt = r.s.now()
		return dirty{users: true}, nil
	})
	if err != nil {
		return err
	}
	r.log.LogUpdate(ctx, map[string]interface{}{"user_id": id, "field": "password"})
	return nil
}

// Delete removes the user, every model they own and all favorites that
// point at those models, then removes the physical files.
func (r *userRepo) Delete(ctx context.Context, id string) error {
	var orphaned []string
	err := r.s.update(ctx, func(st *state) (dirty, error) {
		i := st.userIndex(id)
		if i < 0 {
			return dirty{}, models.NewNotFoundError("User", id)
		}
		d := dirty{users: true}

		kept := st.models[:0]
		removed := make(map[string]struct{})
		for _, m := range st.models {
			if m.UserID != id {
				kept = append(kept, m)
				continue
			}
			removed[m.ID] = struct{}{}
			orphaned = append(orphaned, m.StoredFiles()...)
			st.adjustCategory(m.Category, -1)
			d.models, d.categories = true, true
		}
		st.models = kept
		st.users = append(st.users[:i], st.users[i+1:]...)
		st.dropFavorites(removed)
		return d, nil
	})
	if err != nil {
		return err
	}
	if r.s.files != nil && len(orphaned) > 0 {
		r.s.files.Remove(ctx, orphaned...)
	}
	r.log.LogDelete(ctx, map[string]interface{}{"user_id": id, "files_removed": len(orphaned)})
	return nil
}

func (st *state) dropFavorites(modelIDs map[string]struct{}) {
	if len(modelIDs) == 0 {
		return
	}
	for i := range st.users {
		favs := st.users[i].Favorites[:0]
		for _, id := range st.users[i].Favorites {
			if _, gone := modelIDs[id]; !gone {
				favs = append(favs, id)
			}
		}
		st.users[i].Favorites = favs
	}
}

func (r *userRepo) Authenticate(ctx context.Context, login, password string) (*models.User, error) {
	user, err := r.GetByUsername(ctx, login)
	if models.IsNotFound(err) {
		user, err = r.GetByEmail(ctx, login)
	}
	if err != nil {
		return nil, repository.RejectUnknownLogin(password)
	}
	if !repository.CheckPassword(user.Password, password) {
		return nil, repository.ErrInvalidCredentials
	}
	return user, nil
}

func (r *userRepo) ToggleFavorite(ctx context.Context, userID, modelID string) error {
	added := false
	err := r.s.update(ctx, func(st *state) (dirty, error) {
		i := st.userIndex(userID)
		if i < 0 {
			return dirty{}, models.NewNotFoundError("User", userID)
		}
		if st.modelIndex(modelID) < 0 {
			return dirty{}, models.NewNotFoundError("Model", modelID)
		}
		favs := st.users[i].Favorites
		for j, id := range favs {
			if id == modelID {
				st.users[i].Favorites = append(favs[:j], favs[j+1:]...)
				return dirty{users: true}, nil
			}
		}
		added = true
		st.users[i].Favorites = append(favs, modelID)
		return dirty{users: true}, nil
	})
	if err != nil {
		return err
	}
	r.log.LogUpdate(ctx, map[string]interface{}{"user_id": userID, "model_id": modelID, "favorited": added})
	return nil
}
