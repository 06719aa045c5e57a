// Package middleware provides authentication and authorization middleware for the application.
package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/morroware/FEC-STL-sub000/internal/models"
)

// Fiber locals populated by Authenticate.
const (
	LocalUserID   = "userID"
	LocalIsAdmin  = "isAdmin"
	LocalIdentity = "identity"
)

// Identity is the caller resolved from a bearer token.
type Identity struct {
	UserID  string
	IsAdmin bool
	TokenID string
	Token   string
}

// TokenVerifier resolves a raw token into the caller it was issued to.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*Identity, error)
}

// AuthRequired rejects requests without a valid bearer token.
func AuthRequired(v TokenVerifier) fiber.Handler {
	return authenticate(v, true)
}

// AuthOptional resolves the caller when a token is present and lets anonymous requests through.
// An invalid token is still rejected so clients notice expired sessions.
func AuthOptional(v TokenVerifier) fiber.Handler {
	return authenticate(v, false)
}

// AdminRequired must run after AuthRequired.
func AdminRequired(c *fiber.Ctx) error {
	if isAdmin, _ := c.Locals(LocalIsAdmin).(bool); !isAdmin {
		return models.RespondWithError(c, fiber.StatusForbidden, models.NewForbiddenError("Admin access required"))
	}
	return c.Next()
}

func authenticate(v TokenVerifier, required bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := extractToken(c)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized, err)
		}
		if token == "" {
			if required {
				return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError("Authentication required"))
			}
			return c.Next()
		}

		id, err := v.VerifyToken(c.UserContext(), token)
		if err != nil {
			if models.ErrorCode(err) == models.CodeInternal {
				return models.RespondWithError(c, fiber.StatusInternalServerError, err)
			}
			return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError("Invalid or expired token"))
		}

		c.Locals(LocalUserID, id.UserID)
		c.Locals(LocalIsAdmin, id.IsAdmin)
		c.Locals(LocalIdentity, id)
		c.SetUserContext(context.WithValue(c.UserContext(), UserIDKey, id.UserID))
		return c.Next()
	}
}

// extractToken reads "Authorization: Bearer <token>" and falls back to the
// token query parameter, which browsers need for WebSocket upgrades.
func extractToken(c *fiber.Ctx) (string, error) {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", models.NewUnauthorizedError("Invalid authorization header format")
		}
		return parts[1], nil
	}
	return c.Query("token"), nil
}

// CurrentIdentity returns the caller set by the auth middleware, or nil.
func CurrentIdentity(c *fiber.Ctx) *Identity {
	id, _ := c.Locals(LocalIdentity).(*Identity)
	return id
}
