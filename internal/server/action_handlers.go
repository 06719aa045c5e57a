package server

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/morroware/FEC-STL-sub000/internal/middleware"
	"github.com/morroware/FEC-STL-sub000/internal/models"
)

// actions maps each action name to the handler behind its REST route.
// Authorization is enforced by the services, so one table serves
// anonymous and signed-in callers alike.
func (s *Server) actions() map[string]fiber.Handler {
	return map[string]fiber.Handler{
		"login":           middleware.Limited(s.redis, loginLimit, loginWindow, "login", s.Login),
		"register":        middleware.Limited(s.redis, registerLimit, registerWindow, "register", s.Register),
		"logout":          s.Logout,
		"check_auth":      s.CheckAuth,
		"get_models":      s.GetModels,
		"get_model":       s.GetModel,
		"upload_model":    middleware.Limited(s.redis, uploadLimit, uploadWindow, "upload", s.UploadModel),
		"update_model":    s.UpdateModel,
		"delete_model":    s.DeleteModel,
		"download_model":  s.DownloadModel,
		"like_model":      s.LikeModel,
		"favorite_model":  s.FavoriteModel,
		"get_favorites":   s.GetFavorites,
		"get_categories":  s.GetCategories,
		"create_category": s.CreateCategory,
		"update_category": s.UpdateCategory,
		"delete_category": s.DeleteCategory,
		"get_users":       s.GetUsers,
		"get_user":        s.GetUser,
		"update_user":     s.UpdateUser,
		"delete_user":     s.DeleteUser,
		"get_stats":       s.GetStats,
	}
}

// Action handles GET|POST /api/action
// @Summary Action endpoint
// @Description Dispatches on the "action" parameter (query, form or JSON body) to the matching REST handler
// @Tags action
// @Accept json
// @Produce json
// @Param action query string true "Action name, e.g. get_models"
// @Success 200 {object} object{success=bool}
// @Failure 400 {object} models.ErrorResponse
// @Router /action [get]
// @Router /action [post]
func (s *Server) Action(c *fiber.Ctx) error {
	name := strings.ToLower(strings.TrimSpace(param(c, "action")))
	if name == "" {
		return respondError(c, models.NewValidationError("No action specified"))
	}

	handler, ok := s.actionTable[name]
	if !ok {
		return respondError(c, models.NewValidationError("Unknown action: "+name))
	}

	c.Locals(localAction, name)
	return handler(c)
}
