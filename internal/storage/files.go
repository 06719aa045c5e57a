// Package storage keeps uploaded model files and photos on a filesystem.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/morroware/FEC-STL-sub000/internal/middleware"
	"github.com/morroware/FEC-STL-sub000/internal/validation"
)

// ErrTooLarge is returned when a stream exceeds the size limit passed to Save.
var ErrTooLarge = errors.New("file exceeds the size limit")

// ErrInvalidName is returned for names that are not plain stored filenames.
var ErrInvalidName = errors.New("invalid stored filename")

const thumbnailPrefix = "thumb_"

// FileStore stores files under a single flat directory.
type FileStore struct {
	fs afero.Fs
}

// NewFileStore returns a FileStore rooted at dir on the OS filesystem.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return NewFileStoreFs(afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
}

// NewFileStoreFs wraps an existing afero filesystem, typically a MemMapFs in tests.
func NewFileStoreFs(fs afero.Fs) *FileStore {
	return &FileStore{fs: fs}
}

// GenerateName prefixes the sanitized original name with a random id.
func GenerateName(original string) string {
	prefix := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	return prefix + "_" + validation.SanitizeFilename(original)
}

// ThumbnailName is the stored name of the WebP thumbnail generated for a photo.
func ThumbnailName(name string) string {
	return thumbnailPrefix + strings.TrimSuffix(name, filepath.Ext(name)) + ".webp"
}

// Save streams r into a newly named file. When limit > 0 and the stream is
// longer than limit bytes, the partial file is removed and ErrTooLarge returned.
func (s *FileStore) Save(originalName string, r io.Reader, limit int64) (string, int64, error) {
	name := GenerateName(originalName)
	f, err := s.fs.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("create %s: %w", name, err)
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		_ = s.fs.Remove(name)
		return "", 0, fmt.Errorf("write %s: %w", name, copyErr)
	case closeErr != nil:
		_ = s.fs.Remove(name)
		return "", 0, fmt.Errorf("close %s: %w", name, closeErr)
	case limit > 0 && n > limit:
		_ = s.fs.Remove(name)
		return "", 0, ErrTooLarge
	}
	return name, n, nil
}

// WriteFile writes data under an exact name, replacing any existing file.
func (s *FileStore) WriteFile(name string, data []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	return afero.WriteFile(s.fs, name, data, 0o600)
}

// Open opens a stored file for reading.
func (s *FileStore) Open(name string) (afero.File, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	return s.fs.Open(name)
}

// Exists reports whether a stored file is present.
func (s *FileStore) Exists(name string) bool {
	if checkName(name) != nil {
		return false
	}
	ok, err := afero.Exists(s.fs, name)
	return err == nil && ok
}

// Remove deletes each named file and its thumbnail. Missing files are
// logged and skipped.
func (s *FileStore) Remove(ctx context.Context, names ...string) {
	for _, name := range names {
		if name == "" {
			continue
		}
		for _, target := range []string{name, ThumbnailName(name)} {
			if err := checkName(target); err != nil {
				middleware.Logger.WarnContext(ctx, "refusing to remove file", "file", target, "error", err)
				continue
			}
			err := s.fs.Remove(target)
			switch {
			case err == nil:
			case errors.Is(err, os.ErrNotExist):
				if target == name {
					middleware.Logger.DebugContext(ctx, "stored file already missing", "file", target)
				}
			default:
				middleware.Logger.WarnContext(ctx, "failed to remove stored file", "file", target, "error", err)
			}
		}
	}
}

func checkName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return ErrInvalidName
	}
	return nil
}
