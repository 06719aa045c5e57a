package seed

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/morroware/FEC-STL-sub000/internal/repository"
	"github.com/morroware/FEC-STL-sub000/internal/repository/jsonfile"
	"github.com/morroware/FEC-STL-sub000/internal/service"
	"github.com/morroware/FEC-STL-sub000/internal/storage"
	"github.com/morroware/FEC-STL-sub000/internal/validation"
)

func TestMain(m *testing.M) {
	repository.PasswordCost = bcrypt.MinCost
	os.Exit(m.Run())
}

func newStore(t *testing.T) (repository.Store, *storage.FileStore, *service.UploadService) {
	t.Helper()
	files := storage.NewFileStoreFs(afero.NewMemMapFs())
	store, err := jsonfile.Open(context.Background(), t.TempDir(), files)
	require.NoError(t, err)
	uploads := service.NewUploadService(store, files, nil, service.UploadLimits{
		ModelExtensions: []string{"stl"},
		MaxModelBytes:   1 << 20,
		MaxFiles:        10,
	})
	return store, files, uploads
}

func TestDefaultCategories(t *testing.T) {
	presets, err := DefaultCategories()
	require.NoError(t, err)
	require.NotEmpty(t, presets)
	for _, p := range presets {
		assert.NotEmpty(t, p.Name)
		assert.NotEmpty(t, p.Icon, p.Name)
	}
}

func TestCategories_Idempotent(t *testing.T) {
	store, _, _ := newStore(t)
	ctx := context.Background()
	presets, err := DefaultCategories()
	require.NoError(t, err)

	n, err := Categories(ctx, store.Categories())
	require.NoError(t, err)
	assert.Equal(t, len(presets), n)

	n, err = Categories(ctx, store.Categories())
	require.NoError(t, err)
	assert.Zero(t, n)

	cats, err := store.Categories().List(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, len(presets))

	tools, err := store.Categories().Get(ctx, "tools")
	require.NoError(t, err)
	assert.Equal(t, "wrench", tools.Icon)
}

func TestCategories_LeavesCuratedCatalogAlone(t *testing.T) {
	store, _, _ := newStore(t)
	ctx := context.Background()
	_, err := store.Categories().Create(ctx, repository.NewCategory{Name: "Robots"})
	require.NoError(t, err)

	n, err := Categories(ctx, store.Categories())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFactoryUsernamesAreValid(t *testing.T) {
	f := NewFactory(nil, nil, SeedOptions{Seed: 7})
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		name := f.Username()
		assert.Regexp(t, `^[A-Za-z0-9_]{3,20}$`, name)
		assert.False(t, seen[name], name)
		seen[name] = true
	}
}

func TestCubeSTL(t *testing.T) {
	stl := CubeSTL("cube", 10)
	assert.True(t, bytes.HasPrefix(stl, []byte("solid cube\n")))
	assert.True(t, bytes.HasSuffix(stl, []byte("endsolid cube\n")))
	assert.Equal(t, 12, bytes.Count(stl, []byte("facet normal")))
	assert.Equal(t, 36, bytes.Count(stl, []byte("vertex ")))
}

func TestFactoryCreateModelStoresFiles(t *testing.T) {
	store, files, uploads := newStore(t)
	ctx := context.Background()
	_, err := Categories(ctx, store.Categories())
	require.NoError(t, err)

	f := NewFactory(store, uploads, SeedOptions{Seed: 42})
	owner, err := f.CreateUser(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, owner.Bio)

	m, err := f.CreateModel(ctx, owner, "toys")
	require.NoError(t, err)
	assert.Equal(t, owner.ID, m.UserID)
	assert.NotEmpty(t, m.Files)
	for _, file := range m.Files {
		assert.Equal(t, "stl", file.Extension)
		assert.True(t, files.Exists(file.Filename), file.Filename)
	}
	assert.Contains(t, m.PrintSettings.Data(), "material")

	_, err = store.Users().Authenticate(ctx, owner.Username, DefaultPassword)
	assert.NoError(t, err)
	assert.NoError(t, validation.ValidatePassword(DefaultPassword))
}

func TestSeed(t *testing.T) {
	store, _, uploads := newStore(t)
	ctx := context.Background()

	res, err := Seed(ctx, store, uploads, Options{
		NumUsers:      4,
		NumModels:     9,
		MaxEngagement: 3,
		SeedOptions:   SeedOptions{Seed: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Users)
	assert.Equal(t, 9, res.Models)
	assert.NotZero(t, res.Categories)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalUsers)
	assert.Equal(t, int64(9), stats.TotalModels)

	// Denormalized counters agree with the models.
	cats, err := store.Categories().List(ctx)
	require.NoError(t, err)
	total := 0
	for _, c := range cats {
		inCat, err := store.Models().ListByCategory(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, len(inCat), c.Count, c.ID)
		total += c.Count
	}
	assert.Equal(t, 9, total)

	users, err := store.Users().List(ctx)
	require.NoError(t, err)
	favorites := 0
	for _, u := range users {
		owned, err := store.Models().ListByUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, len(owned), u.ModelCount, u.Username)
		favorites += len(u.Favorites)
	}
	assert.Equal(t, res.Favorites, favorites)
}

func TestSeedWithoutUsersCreatesNoModels(t *testing.T) {
	store, _, uploads := newStore(t)

	res, err := Seed(context.Background(), store, uploads, Options{NumModels: 5})
	require.NoError(t, err)
	assert.Zero(t, res.Models)
}
