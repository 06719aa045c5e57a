// Package seed creates the built-in categories and demo catalog content.
// The demo helpers are meant for development and testing only.
package seed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/morroware/FEC-STL-sub000/internal/models"
	"github.com/morroware/FEC-STL-sub000/internal/repository"
	"github.com/morroware/FEC-STL-sub000/internal/service"
	"github.com/morroware/FEC-STL-sub000/internal/validation"
)

// DefaultPassword is the password of every generated account.
const DefaultPassword = "password123"

var (
	licenses = []string{"CC-BY", "CC-BY-SA", "CC-BY-NC", "CC0", "GPL", "MIT"}
	printers = []string{"PLA", "PETG", "ABS", "TPU", "ASA"}
)

// SeedOptions tune the generated content.
type SeedOptions struct {
	// Password of generated users. Empty means DefaultPassword.
	Password string
	// Seed makes runs reproducible. Zero seeds from the clock.
	Seed int64
}

// Factory builds catalog entities and persists them through the store and
// the upload service, so generated models have real files behind them.
type Factory struct {
	store   repository.Store
	uploads *service.UploadService
	opts    SeedOptions
	faker   *gofakeit.Faker
	next    int
}

// NewFactory creates a Factory writing to store and uploads.
func NewFactory(store repository.Store, uploads *service.UploadService, opts SeedOptions) *Factory {
	if opts.Password == "" {
		opts.Password = DefaultPassword
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Factory{store: store, uploads: uploads, opts: opts, faker: gofakeit.New(seed)}
}

// Username returns a fresh username that passes account validation.
func (f *Factory) Username() string {
	f.next++
	suffix := fmt.Sprintf("%d", f.next)
	base := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return -1
	}, f.faker.Username())
	if len(base) < validation.MinUsernameLength {
		base = "maker"
	}
	if room := validation.MaxUsernameLength - len(suffix) - 1; len(base) > room {
		base = base[:room]
	}
	return base + "_" + suffix
}

// CreateUser persists a generated user. Overrides run before saving.
func (f *Factory) CreateUser(ctx context.Context, overrides ...func(*repository.NewUser)) (*models.User, error) {
	username := f.Username()
	in := repository.NewUser{
		Username: username,
		Email:    strings.ToLower(username) + "@" + f.faker.DomainName(),
		Password: f.opts.Password,
	}
	for _, override := range overrides {
		override(&in)
	}

	id, err := f.store.Users().Create(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("create user %s: %w", in.Username, err)
	}
	if err := f.store.Users().Update(ctx, id, repository.UserUpdate{
		Bio:      ptr(f.faker.Sentence(10)),
		Location: ptr(f.faker.City()),
	}); err != nil {
		return nil, err
	}
	return f.store.Users().GetByID(ctx, id)
}

// BuildUpload returns a generated upload with one or two model files.
func (f *Factory) BuildUpload(category string) service.UploadInput {
	title := capitalize(f.faker.Adjective()) + " " + capitalize(f.faker.Noun())
	in := service.UploadInput{
		Title:       title,
		Description: f.faker.Paragraph(1, 3, 12, " "),
		Category:    category,
		Tags:        []string{f.faker.Noun(), f.faker.Adjective()},
		License:     f.faker.RandomString(licenses),
		PrintSettings: map[string]string{
			"material": f.faker.RandomString(printers),
			"infill":   fmt.Sprintf("%d%%", f.faker.Number(10, 40)),
			"layer":    fmt.Sprintf("%.2f", f.faker.Float64Range(0.1, 0.3)),
		},
	}

	slug := validation.Slugify(title)
	files := 1 + f.faker.Number(0, 1)
	for i := 0; i < files; i++ {
		name := fmt.Sprintf("%s-%d.stl", slug, i+1)
		in.Files = append(in.Files, uploadPart(name, CubeSTL(slug, f.faker.Float64Range(5, 50)), f.faker.Bool()))
	}
	return in
}

// CreateModel uploads a generated model owned by owner. Overrides run on
// the upload before it is sent.
func (f *Factory) CreateModel(ctx context.Context, owner *models.User, category string, overrides ...func(*service.UploadInput)) (*models.Model, error) {
	in := f.BuildUpload(category)
	for _, override := range overrides {
		override(&in)
	}
	m, err := f.uploads.Upload(ctx, service.Actor{ID: owner.ID, IsAdmin: owner.IsAdmin}, in)
	if err != nil {
		return nil, fmt.Errorf("upload %q: %w", in.Title, err)
	}
	return m, nil
}

// CubeSTL renders an ASCII STL cube with the given edge length.
func CubeSTL(name string, size float64) []byte {
	v := [8][3]float64{
		{0, 0, 0}, {size, 0, 0}, {size, size, 0}, {0, size, 0},
		{0, 0, size}, {size, 0, size}, {size, size, size}, {0, size, size},
	}
	faces := []struct {
		normal [3]float64
		tri    [2][3]int
	}{
		{[3]float64{0, 0, -1}, [2][3]int{{0, 2, 1}, {0, 3, 2}}},
		{[3]float64{0, 0, 1}, [2][3]int{{4, 5, 6}, {4, 6, 7}}},
		{[3]float64{0, -1, 0}, [2][3]int{{0, 1, 5}, {0, 5, 4}}},
		{[3]float64{0, 1, 0}, [2][3]int{{3, 7, 6}, {3, 6, 2}}},
		{[3]float64{-1, 0, 0}, [2][3]int{{0, 4, 7}, {0, 7, 3}}},
		{[3]float64{1, 0, 0}, [2][3]int{{1, 2, 6}, {1, 6, 5}}},
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "solid %s\n", name)
	for _, face := range faces {
		for _, tri := range face.tri {
			fmt.Fprintf(&buf, "  facet normal %g %g %g\n    outer loop\n", face.normal[0], face.normal[1], face.normal[2])
			for _, idx := range tri {
				fmt.Fprintf(&buf, "      vertex %g %g %g\n", v[idx][0], v[idx][1], v[idx][2])
			}
			buf.WriteString("    endloop\n  endfacet\n")
		}
	}
	fmt.Fprintf(&buf, "endsolid %s\n", name)
	return buf.Bytes()
}

func uploadPart(name string, data []byte, hasColor bool) service.UploadFile {
	return service.UploadFile{
		Name:     name,
		Size:     int64(len(data)),
		HasColor: hasColor,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

func capitalize(word string) string {
	if word == "" {
		return word
	}
	return strings.ToUpper(word[:1]) + word[1:]
}

func ptr[T any](v T) *T { return &v }
