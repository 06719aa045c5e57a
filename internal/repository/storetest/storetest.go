// Package storetest holds the behavioural contract every repository.Store
// adapter must satisfy. Adapter packages run it from their own tests.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morroware/FEC-STL-sub000/internal/models"
	"github.com/morroware/FEC-STL-sub000/internal/repository"
	"github.com/morroware/FEC-STL-sub000/internal/storage"
)

// Factory opens an empty Store that removes files through files and reads
// time from now.
type Factory func(t *testing.T, files repository.FileRemover, now func() time.Time) repository.Store

// NewClock returns a deterministic clock that advances one second per call.
func NewClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

type harness struct {
	store repository.Store
	files *storage.FileStore
	fs    afero.Fs
}

func setup(t *testing.T, factory Factory) *harness {
	t.Helper()
	fs := afero.NewMemMapFs()
	files := storage.NewFileStoreFs(fs)
	return &harness{store: factory(t, files, NewClock()), files: files, fs: fs}
}

func (h *harness) user(t *testing.T, username string) string {
	t.Helper()
	id, err := h.store.Users().Create(context.Background(), repository.NewUser{
		Username: username, Email: username + "@x.com", Password: "secret1",
	})
	require.NoError(t, err)
	return id
}

func (h *harness) category(t *testing.T, name string) string {
	t.Helper()
	cat, err := h.store.Categories().Create(context.Background(), repository.NewCategory{Name: name})
	require.NoError(t, err)
	return cat.ID
}

// storedFile writes a physical file so deletion can be observed.
func (h *harness) storedFile(t *testing.T, name string) models.ModelFile {
	t.Helper()
	require.NoError(t, h.files.WriteFile(name, []byte("solid")))
	return models.ModelFile{Filename: name, Filesize: 1000, OriginalName: name}
}

func (h *harness) model(t *testing.T, userID, category, title string, tags ...string) string {
	t.Helper()
	id, err := h.store.Models().Create(context.Background(), repository.NewModel{
		UserID:   userID,
		Title:    title,
		Category: category,
		Tags:     tags,
		Files:    []models.ModelFile{{Filename: title + ".stl", Filesize: 100}},
	})
	require.NoError(t, err)
	return id
}

// Run executes the full contract against the adapter built by factory.
func Run(t *testing.T, factory Factory) {
	t.Run("Users", func(t *testing.T) { testUsers(t, factory) })
	t.Run("Authenticate", func(t *testing.T) { testAuthenticate(t, factory) })
	t.Run("Categories", func(t *testing.T) { testCategories(t, factory) })
	t.Run("ModelLifecycle", func(t *testing.T) { testModelLifecycle(t, factory) })
	t.Run("ModelValidation", func(t *testing.T) { testModelValidation(t, factory) })
	t.Run("ModelUpdate", func(t *testing.T) { testModelUpdate(t, factory) })
	t.Run("Search", func(t *testing.T) { testSearch(t, factory) })
	t.Run("SearchText", func(t *testing.T) { testSearchText(t, factory) })
	t.Run("Stats", func(t *testing.T) { testStats(t, factory) })
	t.Run("Favorites", func(t *testing.T) { testFavorites(t, factory) })
	t.Run("DeleteUserCascades", func(t *testing.T) { testDeleteUser(t, factory) })
	t.Run("Reconcile", func(t *testing.T) { testReconcile(t, factory) })
}

func testUsers(t *testing.T, factory Factory) {
	ctx := context.Background()
	h := setup(t, factory)
	users := h.store.Users()

	alice := h.user(t, "alice")
	bob := h.user(t, "bob")

	got, err := users.GetByUsername(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, alice, got.ID)
	assert.Empty(t, got.Favorites)
	assert.NotEqual(t, "secret1", got.Password)

	got, err = users.GetByEmail(ctx, "Bob@X.com")
	require.NoError(t, err)
	assert.Equal(t, bob, got.ID)

	_, err = users.GetByID(ctx, "missing")
	assert.True(t, models.IsNotFound(err))

	_, err = users.Create(ctx, repository.NewUser{Username: "Alice", Email: "other@x.com", Password: "secret1"})
	assert.True(t, models.IsConflict(err), "username collision ignores case")
	_, err = users.Create(ctx, repository.NewUser{Username: "carol", Email: "ALICE@x.com", Password: "secret1"})
	assert.True(t, models.IsConflict(err), "email collision ignores case")
	_, err = users.Create(ctx, repository.NewUser{Username: "dave"})
	assert.True(t, models.IsValidation(err))
	for _, name := range []string{"a", "bad name!", "this_name_is_way_longer_than_twenty", "émile"} {
		_, err = users.Create(ctx, repository.NewUser{Username: name, Email: "x@x.com", Password: "secret1"})
		assert.True(t, models.IsValidation(err), "username %q", name)
	}

	list, err := users.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, bob, list[0].ID, "newest first")
	assert.Equal(t, alice, list[1].ID)

	bio, loc, admin := "prints all day", "Berlin", true
	require.NoError(t, users.Update(ctx, alice, repository.UserUpdate{Bio: &bio, Location: &loc, IsAdmin: &admin}))
	got, err = users.GetByID(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "prints all day", got.Bio)
	assert.Equal(t, "Berlin", got.Location)
	assert.True(t, got.IsAdmin)
	assert.Equal(t, "alice", got.Username)
	assert.True(t, repository.CheckPassword(got.Password, "secret1"), "update never touches the password")

	taken := "BOB@x.com"
	err = users.Update(ctx, alice, repository.UserUpdate{Email: &taken})
	assert.True(t, models.IsConflict(err))
	err = users.Update(ctx, "missing", repository.UserUpdate{Bio: &bio})
	assert.True(t, models.IsNotFound(err))

	require.NoError(t, users.SetPassword(ctx, alice, "newpass1"))
	got, err = users.GetByID(ctx, alice)
	require.NoError(t, err)
	assert.True(t, repository.CheckPassword(got.Password, "newpass1"))
}

func testAuthenticate(t *testing.T, factory Factory) {
	ctx := context.Background()
	h := setup(t, factory)
	users := h.store.Users()

	_, err := users.Create(ctx, repository.NewUser{Username: "admin", Email: "admin@example.com", Password: "admin123", IsAdmin: true})
	require.NoError(t, err)

	u, err := users.Authenticate(ctx, "Admin", "admin123")
	require.NoError(t, err)
	assert.True(t, u.IsAdmin)

	_, err = users.Authenticate(ctx, "ADMIN@example.com", "admin123")
	require.NoError(t, err)

	_, wrongPass := users.Authenticate(ctx, "admin", "wrongpass")
	_, noUser := users.Authenticate(ctx, "nobody", "wrongpass")
	require.Error(t, wrongPass)
	require.Error(t, noUser)
	assert.Equal(t, wrongPass.Error(), noUser.Error(), "failures must not reveal whether the user exists")
	assert.Equal(t, models.CodeUnauthorized, models.ErrorCode(wrongPass))
}

func testCategories(t *testing.T, factory Factory) {
	ctx := context.Background()
	h := setup(t, factory)
	cats := h.store.Categories()

	first, err := cats.Create(ctx, repository.NewCategory{Name: "Other", Icon: "fa-box"})
	require.NoError(t, err)
	second, err := cats.Create(ctx, repository.NewCategory{Name: "Other"})
	require.NoError(t, err)
	third, err := cats.Create(ctx, repository.NewCategory{Name: "other"})
	require.NoError(t, err)
	assert.Equal(t, "other", first.ID)
	assert.Equal(t, "other-1", second.ID)
	assert.Equal(t, "other-2", third.ID)
	assert.Zero(t, first.Count)

	_, err = cats.Create(ctx, repository.NewCategory{Name: "  "})
	assert.True(t, models.IsValidation(err))

	h.category(t, "Articulated Toys")
	h.category(t, "Tools")

	list, err := cats.List(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(list))
	for _, c := range list {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Articulated Toys", "Other", "Other", "other", "Tools"}, names)

	renamed := "Miscellaneous"
	require.NoError(t, cats.Update(ctx, "other", repository.CategoryUpdate{Name: &renamed}))
	got, err := cats.Get(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, "Miscellaneous", got.Name)
	assert.Equal(t, "fa-box", got.Icon)

	require.NoError(t, cats.AdjustCount(ctx, "tools", 2))
	require.NoError(t, cats.AdjustCount(ctx, "tools", -5))
	got, err = cats.Get(ctx, "tools")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Count, "count never goes negative")

	assert.True(t, models.IsNotFound(cats.AdjustCount(ctx, "missing", 1)))
	assert.True(t, models.IsNotFound(cats.Delete(ctx, "missing")))

	require.NoError(t, cats.Delete(ctx, "other-2"))
	_, err = cats.Get(ctx, "other-2")
	assert.True(t, models.IsNotFound(err))
}

func testModelLifecycle(t *testing.T, factory Factory) {
	ctx := context.Background()
	h := setup(t, factory)

	alice := h.user(t, "alice")
	tools := h.category(t, "Tools")
	assert.Equal(t, "tools", tools)

	file := h.storedFile(t, "f1.stl")
	photo := "p1.jpg"
	require.NoError(t, h.files.WriteFile(photo, []byte("jpg")))
	require.NoError(t, h.files.WriteFile(storage.ThumbnailName(photo), []byte("webp")))

	id, err := h.store.Models().Create(ctx, repository.NewModel{
		UserID:        alice,
		Title:         "Bracket",
		Category:      tools,
		Tags:          []string{"mount", " wall ", "mount"},
		PrintSettings: map[string]string{"infill": "20%"},
		Files:         []models.ModelFile{file},
		Photos:        []string{photo},
	})
	require.NoError(t, err)

	cat, err := h.store.Categories().Get(ctx, tools)
	require.NoError(t, err)
	assert.Equal(t, 1, cat.Count)
	owner, err := h.store.Users().GetByID(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, owner.ModelCount)

	m, err := h.store.Models().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Bracket", m.Title)
	assert.Equal(t, 1, m.FileCount)
	assert.EqualValues(t, 1000, m.Filesize)
	assert.Equal(t, "f1.stl", m.Filename)
	assert.Equal(t, "stl", m.Files[0].Extension)
	assert.Equal(t, []string{"p1.jpg"}, m.PhotoNames())
	assert.Equal(t, []string{"mount", "wall"}, m.TagList())
	assert.Equal(t, "20%", m.Settings()["infill"])
	assert.Equal(t, models.DisplayAuto, m.PrimaryDisplay)

	require.NoError(t, h.store.Models().IncrementStat(ctx, id, repository.StatDownloads))
	require.NoError(t, h.store.Models().IncrementStat(ctx, id, repository.StatDownloads))
	require.NoError(t, h.store.Models().IncrementStat(ctx, id, repository.StatLikes))
	require.NoError(t, h.store.Models().IncrementStat(ctx, id, repository.StatViews))
	err = h.store.Models().IncrementStat(ctx, id, repository.Stat("rating"))
	assert.True(t, models.IsValidation(err))
	assert.True(t, models.IsNotFound(h.store.Models().IncrementStat(ctx, "missing", repository.StatLikes)))

	m, err = h.store.Models().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Downloads)
	assert.Equal(t, 1, m.Likes)
	assert.Equal(t, 1, m.Views)
	owner, err = h.store.Users().GetByID(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 2, owner.DownloadCount)

	err = h.store.Categories().Delete(ctx, tools)
	assert.True(t, models.IsConflict(err), "category with models cannot be deleted")
	_, err = h.store.Categories().Get(ctx, tools)
	require.NoError(t, err)
	_, err = h.store.Models().Get(ctx, id)
	require.NoError(t, err)

	require.NoError(t, h.store.Models().Delete(ctx, id))

	list, err := h.store.Models().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	cat, err = h.store.Categories().Get(ctx, tools)
	require.NoError(t, err)
	assert.Equal(t, 0, cat.Count)
	owner, err = h.store.Users().GetByID(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 0, owner.ModelCount)
	for _, name := range []string{"f1.stl", "p1.jpg", storage.ThumbnailName(photo)} {
		assert.False(t, h.files.Exists(name), name)
	}

	err = h.store.Models().Delete(ctx, id)
	assert.True(t, models.IsNotFound(err), "second delete reports not found")
	cat, err = h.store.Categories().Get(ctx, tools)
	require.NoError(t, err)
	assert.Equal(t, 0, cat.Count)

	require.NoError(t, h.store.Categories().Delete(ctx, tools))
}

func testModelValidation(t *testing.T, factory Factory) {
	ctx := context.Background()
	h := setup(t, factory)
	alice := h.user(t, "alice")
	tools := h.category(t, "Tools")
	file := models.ModelFile{Filename: "a.stl", Filesize: 10}

	tests := []struct {
		name string
		in   repository.NewModel
	}{
		{"missing title", repository.NewModel{UserID: alice, Category: tools, Files: []models.ModelFile{file}}},
		{"missing category", repository.NewModel{UserID: alice, Title: "x", Files: []models.ModelFile{file}}},
		{"missing owner", repository.NewModel{Title: "x", Category: tools, Files: []models.ModelFile{file}}},
		{"no files", repository.NewModel{UserID: alice, Title: "x", Category: tools}},
		{"unknown owner", repository.NewModel{UserID: "ghost", Title: "x", Category: tools, Files: []models.ModelFile{file}}},
		{"unknown category", repository.NewModel{UserID: alice, Title: "x", Category: "nope", Files: []models.ModelFile{file}}},
		{"bad display", repository.NewModel{UserID: alice, Title: "x", Category: tools, Files: []models.ModelFile{file}, PrimaryDisplay: "3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.store.Models().Create(ctx, tt.in)
			assert.True(t, models.IsValidation(err), "got %v", err)
		})
	}

	cat, err := h.store.Categories().Get(ctx, tools)
	require.NoError(t, err)
	assert.Equal(t, 0, cat.Count, "rejected creates leave counters alone")

	t.Run("legacy single file is folded into files", func(t *testing.T) {
		id, err := h.store.Models().Create(ctx, repository.NewModel{
			UserID:         alice,
			Title:          "Legacy",
			Category:       tools,
			LegacyFile:     &models.ModelFile{Filename: "old.obj", Filesize: 300},
			Files:          []models.ModelFile{{Filename: "extra.stl", Filesize: 200, HasColor: true}},
			PrimaryDisplay: "1",
		})
		require.NoError(t, err)
		m, err := h.store.Models().Get(ctx, id)
		require.NoError(t, err)
		require.Len(t, m.Files, 2)
		assert.Equal(t, "old.obj", m.Filename)
		assert.Equal(t, "obj", m.Files[0].Extension)
		assert.True(t, m.Files[1].HasColor)
		assert.EqualValues(t, 500, m.Filesize)
		assert.Equal(t, 2, m.FileCount)
		assert.Equal(t, "1", m.PrimaryDisplay)
	})
}

func testModelUpdate(t *testing.T, factory Factory) {
	ctx := context.Background()
	h := setup(t, factory)
	alice := h.user(t, "alice")
	tools := h.category(t, "Tools")
	toys := h.category(t, "Toys")
	id := h.model(t, alice, tools, "Clamp")

	title, desc, license := "Quick Clamp", "fits 20mm", "CC-BY"
	tags := []string{"clamp", "jig"}
	settings := map[string]string{"layer_height": "0.2"}
	featured := true
	require.NoError(t, h.store.Models().Update(ctx, id, repository.ModelUpdate{
		Title: &title, Description: &desc, Category: &toys, Tags: &tags,
		License: &license, PrintSettings: &settings, Featured: &featured,
	}))

	m, err := h.store.Models().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Quick Clamp", m.Title)
	assert.Equal(t, "fits 20mm", m.Description)
	assert.Equal(t, toys, m.Category)
	assert.Equal(t, []string{"clamp", "jig"}, m.TagList())
	assert.Equal(t, "CC-BY", m.License)
	assert.Equal(t, "0.2", m.Settings()["layer_height"])
	assert.True(t, m.Featured)
	assert.Equal(t, "Clamp.stl", m.Filename, "files are fixed at creation")

	oldCat, err := h.store.Categories().Get(ctx, tools)
	require.NoError(t, err)
	newCat, err := h.store.Categories().Get(ctx, toys)
	require.NoError(t, err)
	assert.Equal(t, 0, oldCat.Count)
	assert.Equal(t, 1, newCat.Count)

	missing := "does-not-exist"
	err = h.store.Models().Update(ctx, id, repository.ModelUpdate{Category: &missing})
	assert.True(t, models.IsValidation(err))
	newCat, err = h.store.Categories().Get(ctx, toys)
	require.NoError(t, err)
	assert.Equal(t, 1, newCat.Count, "failed move leaves both counts alone")

	empty := ""
	assert.True(t, models.IsValidation(h.store.Models().Update(ctx, id, repository.ModelUpdate{Title: &empty})))
	assert.True(t, models.IsNotFound(h.store.Models().Update(ctx, "missing", repository.ModelUpdate{Title: &title})))
}

func testSearch(t *testing.T, factory Factory) {
	ctx := context.Background()
	h := setup(t, factory)
	alice := h.user(t, "alice")
	tools := h.category(t, "Tools")
	toys := h.category(t, "Toys")

	bracket := h.model(t, alice, tools, "Wall Bracket", "mount")
	dragon := h.model(t, alice, toys, "Flexi Dragon", "articulated", "Print-in-place")
	hook := h.model(t, alice, tools, "Hook 50%", "wall")

	for i := 0; i < 3; i++ {
		require.NoError(t, h.store.Models().IncrementStat(ctx, dragon, repository.StatDownloads))
	}
	require.NoError(t, h.store.Models().IncrementStat(ctx, bracket, repository.StatDownloads))
	require.NoError(t, h.store.Models().IncrementStat(ctx, hook, repository.StatLikes))
	require.NoError(t, h.store.Models().IncrementStat(ctx, hook, repository.StatLikes))

	ids := func(ms []models.Model) []string {
		out := make([]string, 0, len(ms))
		for _, m := range ms {
			out = append(out, m.ID)
		}
		return out
	}
	search := func(q repository.ModelQuery) []string {
		ms, err := h.store.Models().Search(ctx, q)
		require.NoError(t, err)
		return ids(ms)
	}

	newest := search(repository.ModelQuery{Sort: repository.SortNewest})
	assert.Equal(t, []string{hook, dragon, bracket}, newest)
	oldest := search(repository.ModelQuery{Sort: repository.SortOldest})
	assert.Equal(t, []string{bracket, dragon, hook}, oldest)
	assert.Equal(t, newest, search(repository.ModelQuery{}), "newest is the default")

	assert.Equal(t, []string{dragon, bracket, hook}, search(repository.ModelQuery{Sort: repository.SortPopular}))
	assert.Equal(t, []string{hook, dragon, bracket}, search(repository.ModelQuery{Sort: repository.SortLikes}), "ties keep newest-first order")

	assert.Equal(t, []string{hook, bracket}, search(repository.ModelQuery{Query: "WALL"}), "title or tag match")
	assert.Equal(t, []string{dragon}, search(repository.ModelQuery{Query: "in-place"}), "tags are searched")
	assert.Equal(t, []string{hook}, search(repository.ModelQuery{Query: "50%"}), "LIKE wildcards are literal")
	assert.Empty(t, search(repository.ModelQuery{Query: "\",\""}))
	assert.Equal(t, []string{hook, bracket}, search(repository.ModelQuery{Category: tools}))
	assert.Equal(t, []string{bracket}, search(repository.ModelQuery{Query: "mount", Category: tools}))
	assert.Empty(t, search(repository.ModelQuery{Query: "mount", Category: toys}))

	byUser, err := h.store.Models().ListByUser(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{hook, dragon, bracket}, ids(byUser))
	byCat, err := h.store.Models().ListByCategory(ctx, toys)
	require.NoError(t, err)
	assert.Equal(t, []string{dragon}, ids(byCat))
}

// testSearchText covers text the two backends store differently: tags are
// JSON-encoded in SQL and titles may be outside ASCII.
func testSearchText(t *testing.T, factory Factory) {
	ctx := context.Background()
	h := setup(t, factory)
	alice := h.user(t, "alice")
	tools := h.category(t, "Tools")

	create := func(title, description string, tags ...string) string {
		id, err := h.store.Models().Create(ctx, repository.NewModel{
			UserID:      alice,
			Title:       title,
			Description: description,
			Category:    tools,
			Tags:        tags,
			Files:       []models.ModelFile{{Filename: "part.stl", Filesize: 100}},
		})
		require.NoError(t, err)
		return id
	}
	fasteners := create("Fastener kit", "assorted sizes", "nuts&bolts", "<m3>", `quote"d`, `back\slash`)
	nut := create("ÉCROU hexagonal", "Größe M4")
	gear := create("Gear", "spur gear, 20 teeth", "Zahnrad")

	tests := []struct {
		query string
		want  []string
	}{
		{"s&b", []string{fasteners}},
		{"<M3>", []string{fasteners}},
		{`e"d`, []string{fasteners}},
		{`k\s`, []string{fasteners}},
		{"écrou", []string{nut}},
		{"GRÖSSE", nil},
		{"größe", []string{nut}},
		{"zahn", []string{gear}},
		{"SPUR", []string{gear}},
		{"e", []string{gear, nut, fasteners}},
		{"nothing here", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			ms, err := h.store.Models().Search(ctx, repository.ModelQuery{Query: tt.query})
			require.NoError(t, err)
			got := make([]string, 0, len(ms))
			for _, m := range ms {
				got = append(got, m.ID)
			}
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func testStats(t *testing.T, factory Factory) {
	ctx := context.Background()
	h := setup(t, factory)

	stats, err := h.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Stats{}, *stats)

	alice := h.user(t, "alice")
	h.user(t, "bob")
	tools := h.category(t, "Tools")
	h.category(t, "Toys")
	a := h.model(t, alice, tools, "A")
	b := h.model(t, alice, tools, "B")
	require.NoError(t, h.store.Models().IncrementStat(ctx, a, repository.StatDownloads))
	require.NoError(t, h.store.Models().IncrementStat(ctx, b, repository.StatDownloads))
	require.NoError(t, h.store.Models().IncrementStat(ctx, b, repository.StatDownloads))

	stats, err = h.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Stats{TotalModels: 2, TotalUsers: 2, TotalDownloads: 3, TotalCategories: 2}, *stats)
}

func testFavorites(t *testing.T, factory Factory) {
	ctx := context.Background()
	h := setup(t, factory)
	alice := h.user(t, "alice")
	bob := h.user(t, "bob")
	tools := h.category(t, "Tools")
	m1 := h.model(t, bob, tools, "One")
	m2 := h.model(t, bob, tools, "Two")

	favorites := func() []string {
		u, err := h.store.Users().GetByID(ctx, alice)
		require.NoError(t, err)
		return u.Favorites
	}

	require.NoError(t, h.store.Users().ToggleFavorite(ctx, alice, m1))
	before := favorites()
	assert.Equal(t, []string{m1}, before)

	require.NoError(t, h.store.Users().ToggleFavorite(ctx, alice, m2))
	require.NoError(t, h.store.Users().ToggleFavorite(ctx, alice, m2))
	assert.Equal(t, before, favorites(), "toggling twice restores the previous state")

	require.NoError(t, h.store.Users().ToggleFavorite(ctx, alice, m2))
	list, err := h.store.Users().List(ctx)
	require.NoError(t, err)
	for _, u := range list {
		if u.ID == alice {
			assert.ElementsMatch(t, []string{m1, m2}, u.Favorites)
		}
	}

	assert.True(t, models.IsNotFound(h.store.Users().ToggleFavorite(ctx, alice, "missing")))
	assert.True(t, models.IsNotFound(h.store.Users().ToggleFavorite(ctx, "missing", m1)))

	require.NoError(t, h.store.Models().Delete(ctx, m1))
	assert.Equal(t, []string{m2}, favorites(), "deleting a model drops it from favorites")
}

func testDeleteUser(t *testing.T, factory Factory) {
	ctx := context.Background()
	h := setup(t, factory)
	alice := h.user(t, "alice")
	bob := h.user(t, "bob")
	tools := h.category(t, "Tools")
	toys := h.category(t, "Toys")

	file := h.storedFile(t, "alice-part.stl")
	owned, err := h.store.Models().Create(ctx, repository.NewModel{
		UserID: alice, Title: "Part", Category: tools, Files: []models.ModelFile{file},
	})
	require.NoError(t, err)
	h.model(t, alice, toys, "Toy")
	kept := h.model(t, bob, tools, "Bob's")
	require.NoError(t, h.store.Users().ToggleFavorite(ctx, bob, owned))
	require.NoError(t, h.store.Users().ToggleFavorite(ctx, alice, kept))

	require.NoError(t, h.store.Users().Delete(ctx, alice))

	_, err = h.store.Users().GetByID(ctx, alice)
	assert.True(t, models.IsNotFound(err))
	remaining, err := h.store.Models().List(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, kept, remaining[0].ID)

	cat, err := h.store.Categories().Get(ctx, tools)
	require.NoError(t, err)
	assert.Equal(t, 1, cat.Count)
	cat, err = h.store.Categories().Get(ctx, toys)
	require.NoError(t, err)
	assert.Equal(t, 0, cat.Count)
	assert.False(t, h.files.Exists("alice-part.stl"))

	other, err := h.store.Users().GetByID(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, other.Favorites)
	assert.Equal(t, 1, other.ModelCount)

	assert.True(t, models.IsNotFound(h.store.Users().Delete(ctx, alice)))
}

func testReconcile(t *testing.T, factory Factory) {
	ctx := context.Background()
	h := setup(t, factory)
	alice := h.user(t, "alice")
	tools := h.category(t, "Tools")
	h.model(t, alice, tools, "A")
	h.model(t, alice, tools, "B")

	require.NoError(t, h.store.Categories().AdjustCount(ctx, tools, 7))
	require.NoError(t, h.store.Reconcile(ctx))

	cat, err := h.store.Categories().Get(ctx, tools)
	require.NoError(t, err)
	assert.Equal(t, 2, cat.Count)
	u, err := h.store.Users().GetByID(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 2, u.ModelCount)
	require.NoError(t, h.store.Ping(ctx))
}
