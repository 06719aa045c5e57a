package service

import (
	"context"
	"fmt"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morroware/FEC-STL-sub000/internal/models"
	"github.com/morroware/FEC-STL-sub000/internal/notifications"
	"github.com/morroware/FEC-STL-sub000/internal/repository"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestListPaginates(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.upload(t, f.alice, fmt.Sprintf("Part %d", i))
	}
	f.upload(t, f.bob, "Bob gear")

	tests := []struct {
		name      string
		in        ListModelsInput
		wantLen   int
		wantTotal int
		wantPages int
		wantPage  int
		wantFirst string
	}{
		{name: "defaults", in: ListModelsInput{}, wantLen: 6, wantTotal: 6, wantPages: 1, wantPage: 1, wantFirst: "Bob gear"},
		{name: "second page", in: ListModelsInput{Page: 2, Limit: 4}, wantLen: 2, wantTotal: 6, wantPages: 2, wantPage: 2, wantFirst: "Part 1"},
		{name: "past the end", in: ListModelsInput{Page: 9, Limit: 4}, wantLen: 0, wantTotal: 6, wantPages: 2, wantPage: 9},
		{name: "huge page", in: ListModelsInput{Page: 768614336404564652}, wantLen: 0, wantTotal: 6, wantPages: 1, wantPage: 768614336404564652},
		{name: "max int page", in: ListModelsInput{Page: math.MaxInt, Limit: MaxPageSize}, wantLen: 0, wantTotal: 6, wantPages: 1, wantPage: math.MaxInt},
		{name: "oldest first", in: ListModelsInput{Sort: "oldest", Limit: 1}, wantLen: 1, wantTotal: 6, wantPages: 6, wantPage: 1, wantFirst: "Part 0"},
		{name: "query", in: ListModelsInput{Query: "GEAR"}, wantLen: 1, wantTotal: 1, wantPages: 1, wantPage: 1, wantFirst: "Bob gear"},
		{name: "by user", in: ListModelsInput{UserID: f.alice.ID, Limit: 2}, wantLen: 2, wantTotal: 5, wantPages: 3, wantPage: 1, wantFirst: "Part 4"},
		{name: "unknown category", in: ListModelsInput{Category: "nope"}, wantLen: 0, wantTotal: 0, wantPages: 0, wantPage: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := f.models().List(context.Background(), tt.in)
			require.NoError(t, err)
			assert.Len(t, page.Models, tt.wantLen)
			assert.Equal(t, tt.wantTotal, page.Total)
			assert.Equal(t, tt.wantPages, page.Pages)
			assert.Equal(t, tt.wantPage, page.Page)
			if tt.wantFirst != "" {
				assert.Equal(t, tt.wantFirst, page.Models[0].Title)
			}
		})
	}
}

func TestPaginateClampsLimit(t *testing.T) {
	t.Parallel()

	all := make([]models.Model, 150)
	page := paginate(all, 1, 1000)
	assert.Equal(t, MaxPageSize, page.Limit)
	assert.Len(t, page.Models, MaxPageSize)

	page = paginate(all, 0, 0)
	assert.Equal(t, DefaultPageSize, page.Limit)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 13, page.Pages)

	page = paginate(all, math.MaxInt, 7)
	assert.Empty(t, page.Models)
	assert.Equal(t, 22, page.Pages)

	page = paginate(nil, 1, 10)
	assert.Empty(t, page.Models)
	assert.Zero(t, page.Pages)
}

func TestGetCountsViewsAndResolvesAuthor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.upload(t, f.alice, "Bracket")

	_, err := f.models().ToggleFavorite(ctx, f.bob, id)
	require.NoError(t, err)

	detail, err := f.models().Get(ctx, f.bob, id, true)
	require.NoError(t, err)
	assert.Equal(t, 1, detail.Model.Views)
	require.NotNil(t, detail.Author)
	assert.Equal(t, "alice", detail.Author.Username)
	assert.True(t, detail.Favorited)

	detail, err = f.models().Get(ctx, Actor{}, id, false)
	require.NoError(t, err)
	assert.Equal(t, 1, detail.Model.Views)
	assert.False(t, detail.Favorited)

	_, err = f.models().Get(ctx, Actor{}, "missing", true)
	assert.True(t, models.IsNotFound(err))
}

func TestUpdateAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.upload(t, f.alice, "Bracket")

	_, err := f.models().Update(ctx, Actor{}, id, ModelPatch{Title: strPtr("x")})
	assert.Equal(t, models.CodeUnauthorized, models.ErrorCode(err))

	_, err = f.models().Update(ctx, f.bob, id, ModelPatch{Title: strPtr("Stolen")})
	assert.Equal(t, models.CodeForbidden, models.ErrorCode(err))

	_, err = f.models().Update(ctx, f.alice, id, ModelPatch{Featured: boolPtr(true)})
	assert.Equal(t, models.CodeForbidden, models.ErrorCode(err))

	m, err := f.models().Update(ctx, f.alice, id, ModelPatch{
		Title: strPtr("Bracket v2"),
		Tags:  &[]string{"wall", "shelf"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bracket v2", m.Title)
	assert.Equal(t, []string{"wall", "shelf"}, m.TagList())

	m, err = f.models().Update(ctx, f.admin, id, ModelPatch{Featured: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, m.Featured)

	_, err = f.models().Update(ctx, f.alice, id, ModelPatch{Title: strPtr("   ")})
	assert.True(t, models.IsValidation(err))
}

func TestUpdateMovesCategoryCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.Categories().Create(ctx, repository.NewCategory{Name: "Toys"})
	require.NoError(t, err)
	id := f.upload(t, f.alice, "Spinner")

	_, err = f.models().Update(ctx, f.alice, id, ModelPatch{Category: strPtr("toys")})
	require.NoError(t, err)

	tools, err := f.store.Categories().Get(ctx, "tools")
	require.NoError(t, err)
	toys, err := f.store.Categories().Get(ctx, "toys")
	require.NoError(t, err)
	assert.Equal(t, 0, tools.Count)
	assert.Equal(t, 1, toys.Count)
}

func TestDeleteModel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.upload(t, f.alice, "Bracket")
	m, err := f.store.Models().Get(ctx, id)
	require.NoError(t, err)

	err = f.models().Delete(ctx, f.bob, id)
	assert.Equal(t, models.CodeForbidden, models.ErrorCode(err))

	require.NoError(t, f.models().Delete(ctx, f.admin, id))
	for _, name := range m.StoredFiles() {
		assert.False(t, f.files.Exists(name), name)
	}
	cat, err := f.store.Categories().Get(ctx, "tools")
	require.NoError(t, err)
	assert.Equal(t, 0, cat.Count)

	err = f.models().Delete(ctx, f.admin, id)
	assert.True(t, models.IsNotFound(err))
	assert.Equal(t, []string{notifications.EventModelCreated, notifications.EventModelDeleted}, f.events.types())
}

func TestDownload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.uploads(testLimits()).Upload(ctx, f.alice, UploadInput{
		Title:    "Kit",
		Category: "tools",
		Files:    []UploadFile{part("base.stl", []byte("solid base")), part("lid.obj", []byte("v 1 1 1"))},
	})
	require.NoError(t, err)

	dl, err := f.models().Download(ctx, m.ID, 1)
	require.NoError(t, err)
	data, err := io.ReadAll(dl.File)
	require.NoError(t, err)
	require.NoError(t, dl.File.Close())
	assert.Equal(t, "v 1 1 1", string(data))
	assert.Equal(t, "lid.obj", dl.Name)
	assert.Equal(t, int64(7), dl.Size)

	_, err = f.models().Download(ctx, m.ID, 2)
	assert.True(t, models.IsValidation(err))

	stored, err := f.store.Models().Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Downloads)
	owner, err := f.store.Users().GetByID(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, owner.DownloadCount)
	assert.Contains(t, f.events.types(), notifications.EventModelDownloaded)
}

func TestDownloadMissingFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.upload(t, f.alice, "Gone")
	m, err := f.store.Models().Get(ctx, id)
	require.NoError(t, err)
	require.NoError(t, f.fs.Remove(m.Filename))

	_, err = f.models().Download(ctx, id, 0)
	assert.True(t, models.IsNotFound(err))

	m, err = f.store.Models().Get(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, m.Downloads)
}

func TestLikeAndFavorite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.upload(t, f.alice, "Bracket")

	_, err := f.models().Like(ctx, Actor{}, id)
	assert.Equal(t, models.CodeUnauthorized, models.ErrorCode(err))

	likes, err := f.models().Like(ctx, f.bob, id)
	require.NoError(t, err)
	assert.Equal(t, 1, likes)
	likes, err = f.models().Like(ctx, f.alice, id)
	require.NoError(t, err)
	assert.Equal(t, 2, likes)

	on, err := f.models().ToggleFavorite(ctx, f.bob, id)
	require.NoError(t, err)
	assert.True(t, on)
	favs, err := f.models().Favorites(ctx, f.bob)
	require.NoError(t, err)
	require.Len(t, favs, 1)
	assert.Equal(t, id, favs[0].ID)

	on, err = f.models().ToggleFavorite(ctx, f.bob, id)
	require.NoError(t, err)
	assert.False(t, on)

	_, err = f.models().ToggleFavorite(ctx, f.bob, "missing")
	assert.True(t, models.IsNotFound(err))
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.upload(t, f.alice, "Bracket")
	f.upload(t, f.bob, "Gear")
	dl, err := f.models().Download(ctx, id, 0)
	require.NoError(t, err)
	require.NoError(t, dl.File.Close())

	stats, err := f.models().Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Stats{TotalModels: 2, TotalUsers: 3, TotalDownloads: 1, TotalCategories: 1}, *stats)
}
