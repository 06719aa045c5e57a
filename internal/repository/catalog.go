package repository

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"

	"github.com/morroware/FEC-STL-sub000/internal/models"
	"github.com/morroware/FEC-STL-sub000/internal/validation"
)

// PasswordCost is the bcrypt cost used for new hashes. Tests lower it.
var PasswordCost = bcrypt.DefaultCost

// ErrInvalidCredentials is returned by Authenticate for every failure mode
// so callers cannot tell an unknown login from a wrong password.
var ErrInvalidCredentials = models.NewUnauthorizedError("Invalid credentials")

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// unknownLoginHash is compared against when a login matches no user.
var unknownLoginHash = sync.OnceValue(func() string {
	hash, err := HashPassword("no-such-account")
	if err != nil {
		panic(err)
	}
	return hash
})

// RejectUnknownLogin spends one bcrypt comparison and returns
// ErrInvalidCredentials, so a missing account takes as long as a wrong
// password.
func RejectUnknownLogin(password string) error {
	CheckPassword(unknownLoginHash(), password)
	return ErrInvalidCredentials
}

// NewID returns a fresh opaque identifier.
func NewID() string {
	return uuid.NewString()
}

// BuildUser validates registration input and returns the user to persist.
// Every adapter goes through it, so the username rules hold for seeds and
// the bootstrap admin too.
func BuildUser(in NewUser, now time.Time) (*models.User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	if username == "" || email == "" || in.Password == "" {
		return nil, models.NewValidationError("Username, email and password are required")
	}
	if err := validation.ValidateUsername(username); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &models.User{
		ID:        NewID(),
		Username:  username,
		Email:     email,
		Password:  hash,
		IsAdmin:   in.IsAdmin,
		CreatedAt: now,
		UpdatedAt: now,
		Favorites: []string{},
	}, nil
}

// ApplyUserUpdate merges in into u.
func ApplyUserUpdate(u *models.User, in UserUpdate, now time.Time) error {
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if email == "" {
			return models.NewValidationError("Email cannot be empty")
		}
		u.Email = email
	}
	if in.Avatar != nil {
		u.Avatar = *in.Avatar
	}
	if in.Bio != nil {
		u.Bio = *in.Bio
	}
	if in.Location != nil {
		u.Location = *in.Location
	}
	if in.IsAdmin != nil {
		u.IsAdmin = *in.IsAdmin
	}
	u.UpdatedAt = now
	return nil
}

// BuildCategory returns the category to persist under id.
func BuildCategory(id string, in NewCategory, now time.Time) (*models.Category, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, models.NewValidationError("Category name is required")
	}
	return &models.Category{
		ID:          id,
		Name:        name,
		Icon:        strings.TrimSpace(in.Icon),
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ApplyCategoryUpdate merges in into c. The id never changes.
func ApplyCategoryUpdate(c *models.Category, in CategoryUpdate, now time.Time) error {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return models.NewValidationError("Category name cannot be empty")
		}
		c.Name = name
	}
	if in.Icon != nil {
		c.Icon = strings.TrimSpace(*in.Icon)
	}
	if in.Description != nil {
		c.Description = strings.TrimSpace(*in.Description)
	}
	c.UpdatedAt = now
	return nil
}

// UniqueSlug derives a category id from name, appending -1, -2, ... while
// taken reports a collision.
func UniqueSlug(name string, taken func(string) (bool, error)) (string, error) {
	base := validation.Slugify(name)
	candidate := base
	for i := 1; ; i++ {
		exists, err := taken(candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

// BuildModel validates in, folds the legacy single file into the file list
// and fills the derived fields.
func BuildModel(in NewModel, now time.Time) (*models.Model, error) {
	title := strings.TrimSpace(in.Title)
	switch {
	case strings.TrimSpace(in.UserID) == "":
		return nil, models.NewValidationError("Owner is required")
	case title == "":
		return nil, models.NewValidationError("Title is required")
	case strings.TrimSpace(in.Category) == "":
		return nil, models.NewValidationError("Category is required")
	}

	files := make([]models.ModelFile, 0, len(in.Files)+1)
	if in.LegacyFile != nil {
		files = append(files, *in.LegacyFile)
	}
	files = append(files, in.Files...)
	if len(files) == 0 {
		return nil, models.NewValidationError("At least one model file is required")
	}
	for i := range files {
		if files[i].Filename == "" {
			return nil, models.NewValidationError("Model file name is required")
		}
		files[i].ID = 0
		if files[i].Extension == "" {
			files[i].Extension = validation.Extension(files[i].Filename)
		}
	}

	photos := make([]models.ModelPhoto, 0, len(in.Photos))
	for _, name := range in.Photos {
		if name != "" {
			photos = append(photos, models.ModelPhoto{Filename: name})
		}
	}

	display := strings.TrimSpace(in.PrimaryDisplay)
	if display == "" {
		display = models.DisplayAuto
	}
	if !models.ValidPrimaryDisplay(display, len(files)) {
		return nil, models.NewValidationError("Invalid primary display: " + display)
	}

	id := NewID()
	for i := range files {
		files[i].ModelID = id
	}
	for i := range photos {
		photos[i].ModelID = id
	}

	m := &models.Model{
		ID:             id,
		UserID:         in.UserID,
		Title:          title,
		Description:    strings.TrimSpace(in.Description),
		Category:       in.Category,
		Tags:           datatypes.NewJSONSlice(CleanTags(in.Tags)),
		License:        strings.TrimSpace(in.License),
		PrintSettings:  datatypes.NewJSONType(cleanSettings(in.PrintSettings)),
		Files:          files,
		Photos:         photos,
		PrimaryDisplay: display,
		Featured:       in.Featured,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.Recalculate()
	return m, nil
}

// ApplyModelUpdate merges in into m. It does not touch category counts;
// adapters move the count when Category changes.
func ApplyModelUpdate(m *models.Model, in ModelUpdate, now time.Time) error {
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return models.NewValidationError("Title cannot be empty")
		}
		m.Title = title
	}
	if in.Description != nil {
		m.Description = strings.TrimSpace(*in.Description)
	}
	if in.Category != nil {
		if strings.TrimSpace(*in.Category) == "" {
			return models.NewValidationError("Category cannot be empty")
		}
		m.Category = *in.Category
	}
	if in.Tags != nil {
		m.Tags = datatypes.NewJSONSlice(CleanTags(*in.Tags))
	}
	if in.License != nil {
		m.License = strings.TrimSpace(*in.License)
	}
	if in.PrintSettings != nil {
		m.PrintSettings = datatypes.NewJSONType(cleanSettings(*in.PrintSettings))
	}
	if in.PrimaryDisplay != nil {
		if !models.ValidPrimaryDisplay(*in.PrimaryDisplay, len(m.Files)) {
			return models.NewValidationError("Invalid primary display: " + *in.PrimaryDisplay)
		}
		m.PrimaryDisplay = *in.PrimaryDisplay
	}
	if in.Featured != nil {
		m.Featured = *in.Featured
	}
	m.UpdatedAt = now
	return nil
}

// CleanTags trims tags, drops empties and duplicates, and keeps order.
func CleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

func cleanSettings(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		k = strings.TrimSpace(k)
		if k != "" {
			out[k] = strings.TrimSpace(v)
		}
	}
	return out
}

// MatchesQuery reports whether the title, description or any tag of m
// contains query, ignoring case. An empty query matches everything.
func MatchesQuery(m *models.Model, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(m.Title), q) || strings.Contains(strings.ToLower(m.Description), q) {
		return true
	}
	for _, tag := range m.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

// SortModels orders ms in place. The input is expected newest-first so
// that ties keep that order.
func SortModels(ms []models.Model, order SortOrder) {
	switch order {
	case SortOldest:
		sort.SliceStable(ms, func(i, j int) bool { return ms[i].CreatedAt.Before(ms[j].CreatedAt) })
	case SortPopular:
		sort.SliceStable(ms, func(i, j int) bool { return ms[i].Downloads > ms[j].Downloads })
	case SortLikes:
		sort.SliceStable(ms, func(i, j int) bool { return ms[i].Likes > ms[j].Likes })
	default:
		sort.SliceStable(ms, func(i, j int) bool { return ms[i].CreatedAt.After(ms[j].CreatedAt) })
	}
}
