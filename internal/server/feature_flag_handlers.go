package server

import "github.com/gofiber/fiber/v2"

// GetFeatureFlags lists the configured flags and how they evaluate for the
// calling admin.
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	return respond(c, fiber.StatusOK, fiber.Map{
		"flags":     s.featureFlags.Names(),
		"raw":       s.featureFlags.Raw(),
		"evaluated": s.featureFlags.Snapshot(actorFrom(c).ID),
	})
}
