package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"

	"github.com/morroware/FEC-STL-sub000/internal/cache"
	"github.com/morroware/FEC-STL-sub000/internal/middleware"
	"github.com/morroware/FEC-STL-sub000/internal/models"
	"github.com/morroware/FEC-STL-sub000/internal/notifications"
	"github.com/morroware/FEC-STL-sub000/internal/observability"
	"github.com/morroware/FEC-STL-sub000/internal/repository"
	"github.com/morroware/FEC-STL-sub000/internal/validation"
)

// Pagination limits for model listings.
const (
	DefaultPageSize = 12
	MaxPageSize     = 100
)

// ModelService implements browsing, editing and the per-model counters.
type ModelService struct {
	store  repository.Store
	files  FileStorage
	events notifications.Publisher
}

// ListModelsInput filters one page of models. Zero values mean no filter,
// first page and DefaultPageSize.
type ListModelsInput struct {
	Query    string
	Category string
	UserID   string
	Sort     string
	Page     int
	Limit    int
}

// ModelPage is one page of a model listing.
type ModelPage struct {
	Models []models.Model `json:"models"`
	Total  int            `json:"total"`
	Page   int            `json:"page"`
	Pages  int            `json:"pages"`
	Limit  int            `json:"limit"`
}

// ModelDetail is a model with its author and the caller's favorite state.
type ModelDetail struct {
	Model     *models.Model         `json:"model"`
	Author    *models.PublicProfile `json:"author,omitempty"`
	Favorited bool                  `json:"favorited"`
}

// ModelPatch is the payload of update_model. Files and photos are fixed at
// upload time and cannot be changed here.
type ModelPatch struct {
	Title          *string            `json:"title" validate:"omitempty,max=200"`
	Description    *string            `json:"description" validate:"omitempty,max=5000"`
	Category       *string            `json:"category" validate:"omitempty,max=64"`
	Tags           *[]string          `json:"tags"`
	License        *string            `json:"license" validate:"omitempty,max=64"`
	PrintSettings  *map[string]string `json:"print_settings"`
	PrimaryDisplay *string            `json:"primary_display"`
	Featured       *bool              `json:"featured"`
}

// Download is an opened model file ready to stream. The caller closes File.
type Download struct {
	File  afero.File
	Name  string
	Size  int64
	Model *models.Model
}

func NewModelService(store repository.Store, files FileStorage, events notifications.Publisher) *ModelService {
	if events == nil {
		events = notifications.NopPublisher{}
	}
	return &ModelService{store: store, files: files, events: events}
}

// List searches the catalog and returns the requested page.
func (s *ModelService) List(ctx context.Context, in ListModelsInput) (_ *ModelPage, err error) {
	ctx, end := startSpan(ctx, "model.list", attribute.String("query", in.Query), attribute.String("category", in.Category))
	defer end(&err)

	found, err := s.store.Models().Search(ctx, repository.ModelQuery{
		Query:    strings.TrimSpace(in.Query),
		Category: strings.TrimSpace(in.Category),
		Sort:     repository.ParseSort(in.Sort),
	})
	if err != nil {
		return nil, err
	}
	if in.UserID != "" {
		owned := found[:0]
		for _, m := range found {
			if m.UserID == in.UserID {
				owned = append(owned, m)
			}
		}
		found = owned
	}
	return paginate(found, in.Page, in.Limit), nil
}

func paginate(all []models.Model, page, limit int) *ModelPage {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if page < 1 {
		page = 1
	}
	total := len(all)
	pages := (total + limit - 1) / limit

	out := &ModelPage{Models: []models.Model{}, Total: total, Page: page, Pages: pages, Limit: limit}
	// Compare pages before multiplying; page comes straight from the query string.
	if page <= pages {
		start := (page - 1) * limit
		out.Models = all[start:min(start+limit, total)]
	}
	return out
}

// Get returns a model with its author. countView bumps the view counter;
// the API does so for detail requests only.
func (s *ModelService) Get(ctx context.Context, actor Actor, id string, countView bool) (_ *ModelDetail, err error) {
	ctx, end := startSpan(ctx, "model.get", attribute.String("model.id", id))
	defer end(&err)

	m, err := s.store.Models().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if countView {
		if err := s.store.Models().IncrementStat(ctx, id, repository.StatViews); err != nil {
			return nil, err
		}
		m.Views++
	}

	detail := &ModelDetail{Model: m}
	owner, err := s.store.Users().GetByID(ctx, m.UserID)
	switch {
	case err == nil:
		p := owner.Public()
		detail.Author = &p
	case !models.IsNotFound(err):
		return nil, err
	}

	if !actor.Anonymous() {
		if actor.ID == m.UserID && owner != nil {
			detail.Favorited = owner.HasFavorite(id)
		} else if viewer, err := s.store.Users().GetByID(ctx, actor.ID); err == nil {
			detail.Favorited = viewer.HasFavorite(id)
		}
	}
	return detail, nil
}

// Update edits a model's metadata. Only the owner or an admin may edit, and
// only admins may change the featured flag.
func (s *ModelService) Update(ctx context.Context, actor Actor, id string, in ModelPatch) (_ *models.Model, err error) {
	ctx, end := startSpan(ctx, "model.update", attribute.String("model.id", id))
	defer end(&err)

	if err := requireUser(actor); err != nil {
		return nil, err
	}
	m, err := s.store.Models().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanManage(m.UserID) {
		return nil, models.NewForbiddenError("You can only edit your own models")
	}
	if in.Featured != nil && !actor.IsAdmin {
		return nil, models.NewForbiddenError("Only admins can feature models")
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	err = s.store.Models().Update(ctx, id, repository.ModelUpdate{
		Title:          in.Title,
		Description:    in.Description,
		Category:       in.Category,
		Tags:           in.Tags,
		License:        in.License,
		PrintSettings:  in.PrintSettings,
		PrimaryDisplay: in.PrimaryDisplay,
		Featured:       in.Featured,
	})
	if err != nil {
		return nil, err
	}
	if in.Category != nil && *in.Category != m.Category {
		cache.InvalidateCategories(ctx)
	}
	return s.store.Models().Get(ctx, id)
}

// Delete removes a model and its stored files.
func (s *ModelService) Delete(ctx context.Context, actor Actor, id string) (err error) {
	ctx, end := startSpan(ctx, "model.delete", attribute.String("model.id", id))
	defer end(&err)

	if err := requireUser(actor); err != nil {
		return err
	}
	m, err := s.store.Models().Get(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanManage(m.UserID) {
		return models.NewForbiddenError("You can only delete your own models")
	}
	if err := s.store.Models().Delete(ctx, id); err != nil {
		return err
	}
	cache.InvalidateCategories(ctx)
	middleware.Logger.InfoContext(ctx, "model deleted",
		slog.String("model_id", id), slog.String("deleted_by", actor.ID))

	s.events.Publish(ctx, notifications.Event{
		Type:     notifications.EventModelDeleted,
		ModelID:  id,
		Title:    m.Title,
		Category: m.Category,
		UserID:   m.UserID,
	})
	return nil
}

// Download opens file number index of a model and counts the download.
// Anyone may download.
func (s *ModelService) Download(ctx context.Context, id string, index int) (_ *Download, err error) {
	ctx, end := startSpan(ctx, "model.download", attribute.String("model.id", id))
	defer end(&err)

	m, err := s.store.Models().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(m.Files) {
		return nil, models.NewValidationError("Invalid file index")
	}
	file := m.Files[index]

	f, err := s.files.Open(file.Filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			middleware.Logger.WarnContext(ctx, "model file missing from storage",
				slog.String("model_id", id), slog.String("file", file.Filename))
			return nil, models.NewNotFoundError("File", file.Filename)
		}
		return nil, models.NewInternalError(err)
	}

	if err := s.store.Models().IncrementStat(ctx, id, repository.StatDownloads); err != nil {
		_ = f.Close()
		return nil, err
	}
	m.Downloads++
	observability.DownloadsTotal.Inc()

	s.events.Publish(ctx, notifications.Event{
		Type:     notifications.EventModelDownloaded,
		ModelID:  id,
		Title:    m.Title,
		Category: m.Category,
	})

	name := file.OriginalName
	if name == "" {
		name = file.Filename
	}
	return &Download{File: f, Name: name, Size: file.Filesize, Model: m}, nil
}

// Like adds one like and returns the new total. Likes are a plain counter.
func (s *ModelService) Like(ctx context.Context, actor Actor, id string) (_ int, err error) {
	ctx, end := startSpan(ctx, "model.like", attribute.String("model.id", id))
	defer end(&err)

	if err := requireUser(actor); err != nil {
		return 0, err
	}
	if err := s.store.Models().IncrementStat(ctx, id, repository.StatLikes); err != nil {
		return 0, err
	}
	m, err := s.store.Models().Get(ctx, id)
	if err != nil {
		return 0, err
	}
	s.events.Publish(ctx, notifications.Event{
		Type:    notifications.EventModelLiked,
		ModelID: id,
		Title:   m.Title,
		UserID:  actor.ID,
	})
	return m.Likes, nil
}

// ToggleFavorite flips the model in the caller's favorites and reports
// whether it is now a favorite.
func (s *ModelService) ToggleFavorite(ctx context.Context, actor Actor, id string) (_ bool, err error) {
	ctx, end := startSpan(ctx, "model.favorite", attribute.String("model.id", id))
	defer end(&err)

	if err := requireUser(actor); err != nil {
		return false, err
	}
	if err := s.store.Users().ToggleFavorite(ctx, actor.ID, id); err != nil {
		return false, err
	}
	user, err := s.store.Users().GetByID(ctx, actor.ID)
	if err != nil {
		return false, err
	}
	return user.HasFavorite(id), nil
}

// Favorites lists the caller's favorite models, skipping any that vanished.
func (s *ModelService) Favorites(ctx context.Context, actor Actor) ([]models.Model, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	user, err := s.store.Users().GetByID(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Model, 0, len(user.Favorites))
	for _, id := range user.Favorites {
		m, err := s.store.Models().Get(ctx, id)
		if models.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, nil
}

// Stats returns the catalog totals. They are never cached.
func (s *ModelService) Stats(ctx context.Context) (_ *models.Stats, err error) {
	ctx, end := startSpan(ctx, "model.stats")
	defer end(&err)

	return s.store.Stats(ctx)
}
