package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/morroware/FEC-STL-sub000/internal/cache"
	"github.com/morroware/FEC-STL-sub000/internal/config"
	"github.com/morroware/FEC-STL-sub000/internal/middleware"
	"github.com/morroware/FEC-STL-sub000/internal/models"
	"github.com/morroware/FEC-STL-sub000/internal/notifications"
	"github.com/morroware/FEC-STL-sub000/internal/observability"
	"github.com/morroware/FEC-STL-sub000/internal/repository"
	"github.com/morroware/FEC-STL-sub000/internal/storage"
	"github.com/morroware/FEC-STL-sub000/internal/validation"
)

// Upload kinds used in metrics and messages.
const (
	kindModel = "model"
	kindPhoto = "photo"
)

const mb = 1 << 20

// UploadLimits bounds what upload_model accepts.
type UploadLimits struct {
	ModelExtensions []string
	PhotoExtensions []string
	MaxModelBytes   int64
	MaxPhotoBytes   int64
	MaxFiles        int
	MaxPhotos       int
}

// LimitsFromConfig reads the upload limits from cfg.
func LimitsFromConfig(cfg *config.Config) UploadLimits {
	return UploadLimits{
		ModelExtensions: config.SplitList(cfg.AllowedExts),
		PhotoExtensions: config.SplitList(cfg.AllowedPhotoExt),
		MaxModelBytes:   int64(cfg.MaxUploadMB) * mb,
		MaxPhotoBytes:   int64(cfg.MaxPhotoMB) * mb,
		MaxFiles:        10,
		MaxPhotos:       10,
	}
}

// UploadFile is one multipart part. Size is the size the client declared;
// the stream is still cut off once it passes the limit.
type UploadFile struct {
	Name     string
	Size     int64
	HasColor bool
	Open     func() (io.ReadCloser, error)
}

// UploadInput is the payload of upload_model.
type UploadInput struct {
	Title          string            `json:"title" validate:"required,max=200"`
	Description    string            `json:"description" validate:"max=5000"`
	Category       string            `json:"category" validate:"required,max=64"`
	Tags           []string          `json:"tags"`
	License        string            `json:"license" validate:"max=64"`
	PrintSettings  map[string]string `json:"print_settings"`
	PrimaryDisplay string            `json:"primary_display"`
	Files          []UploadFile      `json:"-"`
	Photos         []UploadFile      `json:"-"`
}

// UploadService stores uploaded files and registers the model. Files are
// written before the model record; if the record cannot be created every
// file written so far is removed again.
type UploadService struct {
	store  repository.Store
	files  FileStorage
	events notifications.Publisher
	limits UploadLimits
}

func NewUploadService(store repository.Store, files FileStorage, events notifications.Publisher, limits UploadLimits) *UploadService {
	if events == nil {
		events = notifications.NopPublisher{}
	}
	return &UploadService{store: store, files: files, events: events, limits: limits}
}

// Upload validates every part, writes the files and photos, generates photo
// thumbnails and creates the model owned by actor.
func (s *UploadService) Upload(ctx context.Context, actor Actor, in UploadInput) (_ *models.Model, err error) {
	ctx, end := startSpan(ctx, "upload.model", attribute.Int("upload.files", len(in.Files)), attribute.Int("upload.photos", len(in.Photos)))
	defer end(&err)

	if err := requireUser(actor); err != nil {
		return nil, err
	}
	if err := s.check(ctx, &in); err != nil {
		return nil, err
	}

	var written []string
	defer func() {
		if err != nil && len(written) > 0 {
			middleware.Logger.WarnContext(ctx, "removing files of failed upload",
				slog.Int("files", len(written)), slog.String("error", err.Error()))
			s.files.Remove(ctx, written...)
		}
		if err != nil {
			observability.UploadsTotal.WithLabelValues(kindModel, "failed").Inc()
		}
	}()

	files := make([]models.ModelFile, 0, len(in.Files))
	for _, f := range in.Files {
		name, n, err := s.save(f, kindModel, s.limits.MaxModelBytes)
		if err != nil {
			return nil, err
		}
		written = append(written, name)
		files = append(files, models.ModelFile{
			Filename:     name,
			Filesize:     n,
			OriginalName: baseName(f.Name),
			Extension:    validation.Extension(f.Name),
			HasColor:     f.HasColor,
		})
		observability.UploadsTotal.WithLabelValues(kindModel, "stored").Inc()
		observability.UploadBytes.Add(float64(n))
	}

	photos := make([]string, 0, len(in.Photos))
	for _, p := range in.Photos {
		name, n, err := s.save(p, kindPhoto, s.limits.MaxPhotoBytes)
		if err != nil {
			return nil, err
		}
		written = append(written, name)
		photos = append(photos, name)
		observability.UploadsTotal.WithLabelValues(kindPhoto, "stored").Inc()
		observability.UploadBytes.Add(float64(n))
		s.thumbnail(ctx, name)
	}

	id, err := s.store.Models().Create(ctx, repository.NewModel{
		UserID:         actor.ID,
		Title:          in.Title,
		Description:    in.Description,
		Category:       in.Category,
		Tags:           in.Tags,
		License:        in.License,
		PrintSettings:  in.PrintSettings,
		Files:          files,
		Photos:         photos,
		PrimaryDisplay: in.PrimaryDisplay,
	})
	if err != nil {
		return nil, err
	}
	cache.InvalidateCategories(ctx)

	m, err := s.store.Models().Get(ctx, id)
	if err != nil {
		// The model exists; its files must stay.
		written = nil
		return nil, err
	}
	middleware.Logger.InfoContext(ctx, "model uploaded",
		slog.String("model_id", id), slog.String("user_id", actor.ID), slog.Int("files", len(files)))

	s.events.Publish(ctx, notifications.Event{
		Type:     notifications.EventModelCreated,
		ModelID:  id,
		Title:    m.Title,
		Category: m.Category,
		UserID:   actor.ID,
	})
	return m, nil
}

// check rejects the upload before anything is written.
func (s *UploadService) check(ctx context.Context, in *UploadInput) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Category = strings.TrimSpace(in.Category)
	in.License = strings.TrimSpace(in.License)
	if err := validation.Struct(in); err != nil {
		return err
	}

	switch {
	case len(in.Files) == 0:
		return models.NewValidationError("At least one model file is required")
	case s.limits.MaxFiles > 0 && len(in.Files) > s.limits.MaxFiles:
		return models.NewValidationError(fmt.Sprintf("At most %d model files are allowed", s.limits.MaxFiles))
	case s.limits.MaxPhotos > 0 && len(in.Photos) > s.limits.MaxPhotos:
		return models.NewValidationError(fmt.Sprintf("At most %d photos are allowed", s.limits.MaxPhotos))
	}

	for _, f := range in.Files {
		if err := checkPart(f, kindModel, s.limits.ModelExtensions, s.limits.MaxModelBytes); err != nil {
			return err
		}
	}
	for _, p := range in.Photos {
		if err := checkPart(p, kindPhoto, s.limits.PhotoExtensions, s.limits.MaxPhotoBytes); err != nil {
			return err
		}
	}

	if _, err := s.store.Categories().Get(ctx, in.Category); err != nil {
		if models.IsNotFound(err) {
			return models.NewValidationError("Category does not exist")
		}
		return err
	}
	return nil
}

func checkPart(f UploadFile, kind string, allowed []string, limit int64) error {
	ext := validation.Extension(f.Name)
	if !validation.AllowedExtension(ext, allowed) {
		observability.UploadsTotal.WithLabelValues(kind, "rejected").Inc()
		return models.NewValidationError(fmt.Sprintf("Invalid %s file type: %s (allowed: %s)",
			kind, f.Name, strings.Join(allowed, ", ")))
	}
	if limit > 0 && f.Size > limit {
		observability.UploadsTotal.WithLabelValues(kind, "rejected").Inc()
		return tooLarge(kind, f.Name, limit)
	}
	return nil
}

func tooLarge(kind, name string, limit int64) error {
	return models.NewValidationError(fmt.Sprintf("The %s file %s exceeds the %d MB limit", kind, name, limit/mb))
}

func (s *UploadService) save(f UploadFile, kind string, limit int64) (string, int64, error) {
	rc, err := f.Open()
	if err != nil {
		return "", 0, models.NewValidationError("Could not read uploaded file " + f.Name)
	}
	defer rc.Close()

	name, n, err := s.files.Save(f.Name, rc, limit)
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		return "", 0, tooLarge(kind, f.Name, limit)
	case err != nil:
		return "", 0, models.NewInternalError(err)
	}
	return name, n, nil
}

// thumbnail writes the WebP preview of a stored photo. A photo that cannot
// be decoded keeps its original and simply has no thumbnail.
func (s *UploadService) thumbnail(ctx context.Context, name string) {
	f, err := s.files.Open(name)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "open photo for thumbnail", slog.String("file", name), slog.String("error", err.Error()))
		return
	}
	defer f.Close()

	data, err := makeThumbnail(f)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "thumbnail skipped", slog.String("file", name), slog.String("error", err.Error()))
		return
	}
	if err := s.files.WriteFile(storage.ThumbnailName(name), data); err != nil {
		middleware.Logger.WarnContext(ctx, "write thumbnail", slog.String("file", name), slog.String("error", err.Error()))
	}
}

func baseName(name string) string {
	return path.Base(strings.ReplaceAll(name, `\`, "/"))
}
