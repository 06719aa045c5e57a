package server

import (
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/morroware/FEC-STL-sub000/internal/models"
)

// ServeUpload handles GET /uploads/:name, the read-only view of stored files
// that viewers and thumbnails load from. It does not count downloads.
// @Summary Stored file
// @Tags files
// @Produce octet-stream
// @Param name path string true "Stored filename"
// @Success 200 {file} file
// @Failure 404 {object} models.ErrorResponse
// @Router /uploads/{name} [get]
func (s *Server) ServeUpload(c *fiber.Ctx) error {
	name := c.Params("name")
	f, err := s.files.Open(name)
	if err != nil {
		return respondError(c, models.NewNotFoundError("File", name))
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return respondError(c, models.NewInternalError(err))
	}

	c.Type(strings.TrimPrefix(filepath.Ext(name), "."))
	c.Set(fiber.HeaderCacheControl, "public, max-age=86400")
	return c.SendStream(f, int(info.Size()))
}
