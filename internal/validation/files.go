package validation

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
	unsafeSlugChars     = regexp.MustCompile(`[^a-z0-9-]`)
	whitespaceRun       = regexp.MustCompile(`\s+`)
)

// SanitizeFilename keeps the base name and replaces anything outside
// [a-zA-Z0-9._-] with an underscore.
func SanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if base == "." || base == "/" || base == ".." {
		base = ""
	}
	base = unsafeFilenameChars.ReplaceAllString(base, "_")
	base = strings.TrimLeft(base, ".")
	if base == "" {
		return "file"
	}
	return base
}

// Extension returns the lower-cased extension of name without the dot.
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// AllowedExtension reports whether ext (without dot, any case) is in allowed.
func AllowedExtension(ext string, allowed []string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" {
		return false
	}
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(strings.TrimSpace(a), ".")) == ext {
			return true
		}
	}
	return false
}

// Slugify lower-cases name, turns whitespace into hyphens and strips every
// character outside [a-z0-9-]. An empty result becomes "category".
func Slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = whitespaceRun.ReplaceAllString(slug, "-")
	slug = unsafeSlugChars.ReplaceAllString(slug, "")
	if slug == "" {
		return "category"
	}
	return slug
}
