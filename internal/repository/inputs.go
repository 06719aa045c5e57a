package repository

import (
	"strings"

	"github.com/morroware/FEC-STL-sub000/internal/models"
)

// NewUser carries the registration fields. Password is plain text and is
// hashed before it is stored.
type NewUser struct {
	Username string
	Email    string
	Password string
	IsAdmin  bool
}

// UserUpdate merges the non-nil fields into a user. ID and password are
// never changed through this path.
type UserUpdate struct {
	Email    *string
	Avatar   *string
	Bio      *string
	Location *string
	IsAdmin  *bool
}

// NewCategory carries the fields of a category to create.
type NewCategory struct {
	Name        string
	Icon        string
	Description string
}

// CategoryUpdate merges the non-nil fields into a category.
type CategoryUpdate struct {
	Name        *string
	Icon        *string
	Description *string
}

// NewModel carries the fields of an uploaded model. LegacyFile is the
// single-file form; it is folded into Files.
type NewModel struct {
	UserID         string
	Title          string
	Description    string
	Category       string
	Tags           []string
	License        string
	PrintSettings  map[string]string
	LegacyFile     *models.ModelFile
	Files          []models.ModelFile
	Photos         []string
	PrimaryDisplay string
	Featured       bool
}

// ModelUpdate merges the non-nil fields into a model. Files and photos
// are fixed at creation.
type ModelUpdate struct {
	Title          *string
	Description    *string
	Category       *string
	Tags           *[]string
	License        *string
	PrintSettings  *map[string]string
	PrimaryDisplay *string
	Featured       *bool
}

// SortOrder selects the ordering of a model search.
type SortOrder string

const (
	SortNewest  SortOrder = "newest"
	SortOldest  SortOrder = "oldest"
	SortPopular SortOrder = "popular"
	SortLikes   SortOrder = "likes"
)

// ParseSort maps a request value to a SortOrder, defaulting to newest.
func ParseSort(s string) SortOrder {
	switch SortOrder(strings.ToLower(strings.TrimSpace(s))) {
	case SortOldest:
		return SortOldest
	case SortPopular:
		return SortPopular
	case SortLikes:
		return SortLikes
	default:
		return SortNewest
	}
}

// ModelQuery filters and orders a model search.
type ModelQuery struct {
	Query    string
	Category string
	Sort     SortOrder
}

// Stat names a model counter.
type Stat string

const (
	StatDownloads Stat = "downloads"
	StatLikes     Stat = "likes"
	StatViews     Stat = "views"
)

// ParseStat validates a counter name.
func ParseStat(s string) (Stat, error) {
	switch Stat(s) {
	case StatDownloads, StatLikes, StatViews:
		return Stat(s), nil
	}
	return "", models.NewValidationError("Unknown stat: " + s)
}
