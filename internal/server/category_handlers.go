package server

import (
	"github.com/gofiber/fiber/v2"

	"github.com/morroware/FEC-STL-sub000/internal/service"
)

type categoryRequest struct {
	Name        *string `json:"name" form:"name"`
	Icon        *string `json:"icon" form:"icon"`
	Description *string `json:"description" form:"description"`
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// GetCategories handles GET /api/categories
// @Summary List categories
// @Tags categories
// @Produce json
// @Success 200 {object} object{success=bool,categories=[]models.Category}
// @Router /categories [get]
func (s *Server) GetCategories(c *fiber.Ctx) error {
	cats, err := s.categories.List(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"categories": cats})
}

// CreateCategory handles POST /api/categories
// @Summary Create a category
// @Description Admin only; the id is derived from the name
// @Tags categories
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.CategoryInput true "Category"
// @Success 201 {object} object{success=bool,category=models.Category}
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /categories [post]
func (s *Server) CreateCategory(c *fiber.Ctx) error {
	var req categoryRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	cat, err := s.categories.Create(c.UserContext(), actorFrom(c), service.CategoryInput{
		Name:        deref(req.Name),
		Icon:        deref(req.Icon),
		Description: deref(req.Description),
	})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, createdStatus(c), fiber.Map{"category": cat})
}

// UpdateCategory handles PUT /api/categories/:id
// @Summary Update a category
// @Description Admin only; the id never changes
// @Tags categories
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Category ID"
// @Param request body service.CategoryPatch true "Fields to change"
// @Success 200 {object} object{success=bool,category=models.Category}
// @Failure 404 {object} models.ErrorResponse
// @Router /categories/{id} [put]
func (s *Server) UpdateCategory(c *fiber.Ctx) error {
	var req categoryRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	cat, err := s.categories.Update(c.UserContext(), actorFrom(c), param(c, "id"), service.CategoryPatch{
		Name:        req.Name,
		Icon:        req.Icon,
		Description: req.Description,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"category": cat})
}

// DeleteCategory handles DELETE /api/categories/:id
// @Summary Delete a category
// @Description Admin only; refused while models reference it
// @Tags categories
// @Produce json
// @Security BearerAuth
// @Param id path string true "Category ID"
// @Success 200 {object} object{success=bool,message=string}
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /categories/{id} [delete]
func (s *Server) DeleteCategory(c *fiber.Ctx) error {
	if err := s.categories.Delete(c.UserContext(), actorFrom(c), param(c, "id")); err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"message": "Category deleted"})
}
