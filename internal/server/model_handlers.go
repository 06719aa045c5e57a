package server

import (
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/morroware/FEC-STL-sub000/internal/models"
	"github.com/morroware/FEC-STL-sub000/internal/service"
)

type modelUpdateRequest struct {
	Title          *string      `json:"title" form:"title"`
	Description    *string      `json:"description" form:"description"`
	Category       *string      `json:"category" form:"category"`
	Tags           *tagList     `json:"tags" form:"tags"`
	License        *string      `json:"license" form:"license"`
	PrintSettings  *settingsMap `json:"print_settings" form:"print_settings"`
	PrimaryDisplay *string      `json:"primary_display" form:"primary_display"`
	Featured       *bool        `json:"featured" form:"featured"`
}

func (r modelUpdateRequest) patch() service.ModelPatch {
	p := service.ModelPatch{
		Title:          r.Title,
		Description:    r.Description,
		Category:       r.Category,
		License:        r.License,
		PrimaryDisplay: r.PrimaryDisplay,
		Featured:       r.Featured,
	}
	if r.Tags != nil {
		tags := []string(*r.Tags)
		p.Tags = &tags
	}
	if r.PrintSettings != nil {
		settings := map[string]string(*r.PrintSettings)
		p.PrintSettings = &settings
	}
	return p
}

// GetModels handles GET /api/models
// @Summary List models
// @Description Search, filter, sort and paginate the catalog
// @Tags models
// @Produce json
// @Param q query string false "Search text (title, description, tags)"
// @Param category query string false "Category id"
// @Param sort query string false "newest, oldest, popular or likes"
// @Param page query int false "Page, starting at 1"
// @Param limit query int false "Page size (default 12, max 100)"
// @Success 200 {object} object{success=bool,models=[]models.Model,total=int,page=int,pages=int,limit=int}
// @Router /models [get]
func (s *Server) GetModels(c *fiber.Ctx) error {
	return s.listModels(c, param(c, "user_id"))
}

// GetUserModels handles GET /api/users/:id/models
// @Summary List a user's models
// @Tags users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} object{success=bool,models=[]models.Model,total=int,page=int,pages=int,limit=int}
// @Router /users/{id}/models [get]
func (s *Server) GetUserModels(c *fiber.Ctx) error {
	return s.listModels(c, c.Params("id"))
}

func (s *Server) listModels(c *fiber.Ctx, userID string) error {
	query := param(c, "q")
	if query == "" {
		query = param(c, "search")
	}

	page, err := s.models.List(c.UserContext(), service.ListModelsInput{
		Query:    query,
		Category: param(c, "category"),
		UserID:   userID,
		Sort:     param(c, "sort"),
		Page:     intParam(c, "page", 1),
		Limit:    intParam(c, "limit", service.DefaultPageSize),
	})
	if err != nil {
		return respondError(c, err)
	}

	return respond(c, fiber.StatusOK, fiber.Map{
		"models": page.Models,
		"total":  page.Total,
		"page":   page.Page,
		"pages":  page.Pages,
		"limit":  page.Limit,
	})
}

// GetModel handles GET /api/models/:id
// @Summary Get a model
// @Description Returns the model with its author and counts the view
// @Tags models
// @Produce json
// @Param id path string true "Model ID"
// @Success 200 {object} object{success=bool,model=models.Model,author=models.PublicProfile,favorited=bool}
// @Failure 404 {object} models.ErrorResponse
// @Router /models/{id} [get]
func (s *Server) GetModel(c *fiber.Ctx) error {
	detail, err := s.models.Get(c.UserContext(), actorFrom(c), param(c, "id"), true)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{
		"model":     detail.Model,
		"author":    detail.Author,
		"favorited": detail.Favorited,
	})
}

// UploadModel handles POST /api/models
// @Summary Upload a model
// @Description Multipart upload of one or more model files and optional photos
// @Tags models
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param title formData string true "Title"
// @Param category formData string true "Category id"
// @Param description formData string false "Description"
// @Param tags formData string false "Comma separated tags"
// @Param license formData string false "License"
// @Param print_settings formData string false "JSON object of print settings"
// @Param has_color formData []string false "Per-file color flags, in file order"
// @Param files formData file true "Model files"
// @Param photos formData file false "Photos"
// @Success 201 {object} object{success=bool,model=models.Model}
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /models [post]
func (s *Server) UploadModel(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return respondError(c, models.NewValidationError("Upload must be multipart/form-data"))
	}

	model, err := s.uploads.Upload(c.UserContext(), actorFrom(c), uploadInput(form))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, createdStatus(c), fiber.Map{"model": model})
}

// uploadInput reads an upload form. Field names with a trailing "[]" are
// accepted as well, as are the singular file and photo fields.
func uploadInput(form *multipart.Form) service.UploadInput {
	in := service.UploadInput{
		Title:          formValue(form, "title"),
		Description:    formValue(form, "description"),
		Category:       formValue(form, "category"),
		License:        formValue(form, "license"),
		PrimaryDisplay: formValue(form, "primary_display"),
		Tags:           splitTags(formValues(form, "tags")...),
	}

	if raw := formValue(form, "print_settings"); raw != "" {
		var settings settingsMap
		if settings.UnmarshalText([]byte(raw)) == nil {
			in.PrintSettings = settings
		}
	}
	for key, values := range form.Value {
		if name, ok := strings.CutPrefix(key, "print_settings["); ok && len(values) > 0 {
			if in.PrintSettings == nil {
				in.PrintSettings = map[string]string{}
			}
			in.PrintSettings[strings.TrimSuffix(name, "]")] = values[0]
		}
	}

	colors := formValues(form, "has_color")
	for i, fh := range formFiles(form, "files", "file") {
		in.Files = append(in.Files, uploadFile(fh, i < len(colors) && truthy(colors[i])))
	}
	for _, fh := range formFiles(form, "photos", "photo") {
		in.Photos = append(in.Photos, uploadFile(fh, false))
	}
	return in
}

func uploadFile(fh *multipart.FileHeader, hasColor bool) service.UploadFile {
	return service.UploadFile{
		Name:     fh.Filename,
		Size:     fh.Size,
		HasColor: hasColor,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

func formValue(form *multipart.Form, key string) string {
	if v := formValues(form, key); len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

func formValues(form *multipart.Form, key string) []string {
	return append(append([]string(nil), form.Value[key]...), form.Value[key+"[]"]...)
}

func formFiles(form *multipart.Form, keys ...string) []*multipart.FileHeader {
	var out []*multipart.FileHeader
	for _, key := range keys {
		out = append(out, form.File[key]...)
		out = append(out, form.File[key+"[]"]...)
	}
	return out
}

// UpdateModel handles PUT /api/models/:id
// @Summary Update a model
// @Description Owner or admin; only admins may change featured
// @Tags models
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Model ID"
// @Param request body service.ModelPatch true "Fields to change"
// @Success 200 {object} object{success=bool,model=models.Model}
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /models/{id} [put]
func (s *Server) UpdateModel(c *fiber.Ctx) error {
	var req modelUpdateRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	model, err := s.models.Update(c.UserContext(), actorFrom(c), param(c, "id"), req.patch())
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"model": model})
}

// DeleteModel handles DELETE /api/models/:id
// @Summary Delete a model
// @Description Owner or admin; removes the stored files too
// @Tags models
// @Produce json
// @Security BearerAuth
// @Param id path string true "Model ID"
// @Success 200 {object} object{success=bool,message=string}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /models/{id} [delete]
func (s *Server) DeleteModel(c *fiber.Ctx) error {
	if err := s.models.Delete(c.UserContext(), actorFrom(c), param(c, "id")); err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"message": "Model deleted"})
}

// DownloadModel handles GET /api/models/:id/download
// @Summary Download a model file
// @Description Streams the primary file, or the file at index "file", and counts the download
// @Tags models
// @Produce octet-stream
// @Param id path string true "Model ID"
// @Param file query int false "File index"
// @Success 200 {file} file
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /models/{id}/download [get]
func (s *Server) DownloadModel(c *fiber.Ctx) error {
	index := 0
	if raw := strings.TrimSpace(param(c, "file")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return respondError(c, models.NewValidationError("Invalid file index"))
		}
		index = n
	}

	dl, err := s.models.Download(c.UserContext(), param(c, "id"), index)
	if err != nil {
		return respondError(c, err)
	}

	// SendStream closes the file once the body is written.
	c.Attachment(dl.Name)
	return c.SendStream(dl.File, int(dl.Size))
}

// LikeModel handles POST /api/models/:id/like
// @Summary Like a model
// @Tags models
// @Produce json
// @Security BearerAuth
// @Param id path string true "Model ID"
// @Success 200 {object} object{success=bool,likes=int}
// @Failure 404 {object} models.ErrorResponse
// @Router /models/{id}/like [post]
func (s *Server) LikeModel(c *fiber.Ctx) error {
	likes, err := s.models.Like(c.UserContext(), actorFrom(c), param(c, "id"))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"likes": likes})
}

// FavoriteModel handles POST /api/models/:id/favorite
// @Summary Toggle a favorite
// @Tags models
// @Produce json
// @Security BearerAuth
// @Param id path string true "Model ID"
// @Success 200 {object} object{success=bool,favorited=bool}
// @Failure 404 {object} models.ErrorResponse
// @Router /models/{id}/favorite [post]
func (s *Server) FavoriteModel(c *fiber.Ctx) error {
	on, err := s.models.ToggleFavorite(c.UserContext(), actorFrom(c), param(c, "id"))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"favorited": on})
}

// GetFavorites handles GET /api/users/me/favorites
// @Summary My favorites
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{success=bool,models=[]models.Model}
// @Router /users/me/favorites [get]
func (s *Server) GetFavorites(c *fiber.Ctx) error {
	favs, err := s.models.Favorites(c.UserContext(), actorFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"models": favs})
}

// GetStats handles GET /api/stats
// @Summary Catalog statistics
// @Tags stats
// @Produce json
// @Success 200 {object} object{success=bool,stats=models.Stats}
// @Router /stats [get]
func (s *Server) GetStats(c *fiber.Ctx) error {
	stats, err := s.models.Stats(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"stats": stats})
}
