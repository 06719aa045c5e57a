package server

import (
	"github.com/gofiber/fiber/v2"

	"github.com/morroware/FEC-STL-sub000/internal/service"
)

type userUpdateRequest struct {
	Email    *string `json:"email" form:"email"`
	Avatar   *string `json:"avatar" form:"avatar"`
	Bio      *string `json:"bio" form:"bio"`
	Location *string `json:"location" form:"location"`
	IsAdmin  *bool   `json:"is_admin" form:"is_admin"`
	Password *string `json:"password" form:"password"`
}

// GetUsers handles GET /api/users
// @Summary List users
// @Description Admin only
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{success=bool,users=[]models.User}
// @Failure 403 {object} models.ErrorResponse
// @Router /users [get]
func (s *Server) GetUsers(c *fiber.Ctx) error {
	users, err := s.users.List(c.UserContext(), actorFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"users": users})
}

// GetUser handles GET /api/users/:id
// @Summary Get a user profile
// @Description Private fields are only returned to the user themselves and to admins
// @Tags users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} object{success=bool,user=models.PublicProfile,models=[]models.Model}
// @Failure 404 {object} models.ErrorResponse
// @Router /users/{id} [get]
func (s *Server) GetUser(c *fiber.Ctx) error {
	actor := actorFrom(c)
	id := param(c, "id")
	if id == "" {
		id = actor.ID
	}

	profile, err := s.users.Profile(c.UserContext(), actor, id)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{
		"user":   profile.User,
		"models": profile.Models,
	})
}

// UpdateUser handles PUT /api/users/:id
// @Summary Update a user
// @Description The user themselves or an admin; only admins change is_admin, only the user changes the password
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param request body service.UserPatch true "Fields to change"
// @Success 200 {object} object{success=bool,user=models.User}
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /users/{id} [put]
func (s *Server) UpdateUser(c *fiber.Ctx) error {
	var req userUpdateRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	actor := actorFrom(c)
	id := param(c, "id")
	if id == "" {
		id = actor.ID
	}

	user, err := s.users.Update(c.UserContext(), actor, id, service.UserPatch{
		Email:    req.Email,
		Avatar:   req.Avatar,
		Bio:      req.Bio,
		Location: req.Location,
		IsAdmin:  req.IsAdmin,
		Password: req.Password,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"user": user})
}

// DeleteUser handles DELETE /api/users/:id
// @Summary Delete a user
// @Description Admin only; removes the user's models and files
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} object{success=bool,message=string}
// @Failure 403 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /users/{id} [delete]
func (s *Server) DeleteUser(c *fiber.Ctx) error {
	if err := s.users.Delete(c.UserContext(), actorFrom(c), param(c, "id")); err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{"message": "User deleted"})
}
