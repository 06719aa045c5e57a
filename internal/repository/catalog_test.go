package repository

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"

	"github.com/morroware/FEC-STL-sub000/internal/models"
)

func TestParseSort(t *testing.T) {
	t.Parallel()
	assert.Equal(t, SortNewest, ParseSort(""))
	assert.Equal(t, SortNewest, ParseSort("random"))
	assert.Equal(t, SortOldest, ParseSort("Oldest"))
	assert.Equal(t, SortPopular, ParseSort(" popular "))
	assert.Equal(t, SortLikes, ParseSort("likes"))
}

func TestParseStat(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"downloads", "likes", "views"} {
		got, err := ParseStat(s)
		require.NoError(t, err)
		assert.Equal(t, Stat(s), got)
	}
	_, err := ParseStat("rating")
	assert.True(t, models.IsValidation(err))
}

func TestUniqueSlug(t *testing.T) {
	t.Parallel()
	taken := map[string]bool{"other": true, "other-1": true}
	id, err := UniqueSlug("Other", func(s string) (bool, error) { return taken[s], nil })
	require.NoError(t, err)
	assert.Equal(t, "other-2", id)

	id, err = UniqueSlug("Tools", func(string) (bool, error) { return false, nil })
	require.NoError(t, err)
	assert.Equal(t, "tools", id)
}

func TestBuildUserValidatesUsername(t *testing.T) {
	t.Parallel()
	tests := []struct {
		username string
		valid    bool
	}{
		{"maker_01", true},
		{"  abc  ", true},
		{"ab", false},
		{"bad name!", false},
		{"this_name_is_way_longer_than_twenty", false},
		{"émile", false},
	}
	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			u, err := BuildUser(NewUser{Username: tt.username, Email: "x@example.com", Password: "secret1"}, time.Now())
			if !tt.valid {
				assert.True(t, models.IsValidation(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, u.Username, len(strings.TrimSpace(tt.username)))
		})
	}
}

func TestRejectUnknownLogin(t *testing.T) {
	t.Parallel()
	err := RejectUnknownLogin("secret1")
	assert.Equal(t, ErrInvalidCredentials, err)

	hash := unknownLoginHash()
	_, costErr := bcrypt.Cost([]byte(hash))
	require.NoError(t, costErr, "comparison runs against a real bcrypt hash")
	assert.False(t, CheckPassword(hash, ""))
}

func TestBuildModelDerivesFields(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	m, err := BuildModel(NewModel{
		UserID:     "u1",
		Title:      "  Gear  ",
		Category:   "tools",
		LegacyFile: &models.ModelFile{Filename: "a.STL", Filesize: 10},
		Files:      []models.ModelFile{{Filename: "b.obj", Filesize: 32}},
		Photos:     []string{"p.jpg", ""},
	}, now)
	require.NoError(t, err)

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "Gear", m.Title)
	assert.Equal(t, "a.STL", m.Filename)
	assert.EqualValues(t, 42, m.Filesize)
	assert.Equal(t, 2, m.FileCount)
	assert.Equal(t, "stl", m.Files[0].Extension)
	assert.Equal(t, 1, m.Files[1].Position)
	assert.Equal(t, m.ID, m.Files[1].ModelID)
	assert.Equal(t, []string{"p.jpg"}, m.PhotoNames())
	assert.Equal(t, models.DisplayAuto, m.PrimaryDisplay)
	assert.Equal(t, []string{}, m.TagList())
	assert.Equal(t, now, m.CreatedAt)
}

func TestMatchesQuery(t *testing.T) {
	t.Parallel()
	m := &models.Model{
		Title:       "Cable Clip",
		Description: "Snaps onto desk edges",
		Tags:        datatypes.NewJSONSlice([]string{"Organizer"}),
	}
	assert.True(t, MatchesQuery(m, ""))
	assert.True(t, MatchesQuery(m, "clip"))
	assert.True(t, MatchesQuery(m, "DESK"))
	assert.True(t, MatchesQuery(m, "organ"))
	assert.False(t, MatchesQuery(m, "bracket"))
}

func TestSortModelsIsStable(t *testing.T) {
	t.Parallel()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ms := []models.Model{
		{ID: "c", CreatedAt: base.Add(3 * time.Hour), Downloads: 1},
		{ID: "b", CreatedAt: base.Add(2 * time.Hour), Downloads: 5},
		{ID: "a", CreatedAt: base.Add(1 * time.Hour), Downloads: 1},
	}
	ids := func() []string {
		out := []string{}
		for _, m := range ms {
			out = append(out, m.ID)
		}
		return out
	}

	SortModels(ms, SortPopular)
	assert.Equal(t, []string{"b", "c", "a"}, ids())
	SortModels(ms, SortOldest)
	assert.Equal(t, []string{"a", "b", "c"}, ids())
	SortModels(ms, SortNewest)
	assert.Equal(t, []string{"c", "b", "a"}, ids())
}

func TestCleanTags(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"PLA", "fast"}, CleanTags([]string{" PLA ", "", "pla", "fast"}))
	assert.Equal(t, []string{}, CleanTags(nil))
}
