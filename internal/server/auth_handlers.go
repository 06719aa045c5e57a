package server

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/morroware/FEC-STL-sub000/internal/middleware"
	"github.com/morroware/FEC-STL-sub000/internal/service"
)

type registerRequest struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// loginRequest accepts the login under any of the names clients use for it.
type loginRequest struct {
	Login    string `json:"login" form:"login"`
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

func (r loginRequest) login() string {
	for _, v := range []string{r.Login, r.Username, r.Email} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// Register handles POST /api/auth/register
// @Summary Register
// @Description Create an account and return a session token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{username=string,email=string,password=string} true "Registration"
// @Success 201 {object} object{success=bool,token=string,expires_at=string,user=models.User}
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /auth/register [post]
func (s *Server) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	sess, err := s.auth.Register(c.UserContext(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return respondError(c, err)
	}

	return respond(c, createdStatus(c), fiber.Map{
		"token":      sess.Token,
		"expires_at": sess.ExpiresAt,
		"user":       sess.User,
	})
}

// Login handles POST /api/auth/login
// @Summary Login
// @Description Authenticate by username or email and return a session token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{login=string,password=string} true "Credentials"
// @Success 200 {object} object{success=bool,token=string,expires_at=string,user=models.User}
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	sess, err := s.auth.Login(c.UserContext(), req.login(), req.Password)
	if err != nil {
		return respondError(c, err)
	}

	return respond(c, fiber.StatusOK, fiber.Map{
		"token":      sess.Token,
		"expires_at": sess.ExpiresAt,
		"user":       sess.User,
	})
}

// Logout handles POST /api/auth/logout. Logging out without a session is a no-op.
// @Summary Logout
// @Description Revoke the current token
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{success=bool,message=string}
// @Router /auth/logout [post]
func (s *Server) Logout(c *fiber.Ctx) error {
	if id := middleware.CurrentIdentity(c); id != nil {
		if err := s.auth.Logout(c.UserContext(), id.Token); err != nil {
			return respondError(c, err)
		}
	}
	return respond(c, fiber.StatusOK, fiber.Map{"message": "Logged out"})
}

// CheckAuth handles GET /api/auth/me
// @Summary Current session
// @Description Report whether the request is authenticated and by whom
// @Tags auth
// @Produce json
// @Success 200 {object} object{success=bool,authenticated=bool,user=models.User}
// @Router /auth/me [get]
func (s *Server) CheckAuth(c *fiber.Ctx) error {
	actor := actorFrom(c)
	if actor.Anonymous() {
		return respond(c, fiber.StatusOK, fiber.Map{"authenticated": false})
	}

	user, err := s.auth.CurrentUser(c.UserContext(), actor)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusOK, fiber.Map{
		"authenticated": true,
		"user":          user,
	})
}
