package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morroware/FEC-STL-sub000/internal/models"
)

type stubVerifier struct {
	verify func(ctx context.Context, token string) (*Identity, error)
}

func (s stubVerifier) VerifyToken(ctx context.Context, token string) (*Identity, error) {
	return s.verify(ctx, token)
}

func tokenVerifier() TokenVerifier {
	return stubVerifier{verify: func(_ context.Context, token string) (*Identity, error) {
		switch token {
		case "user-token":
			return &Identity{UserID: "u1", TokenID: "j1", Token: token}, nil
		case "admin-token":
			return &Identity{UserID: "a1", IsAdmin: true, TokenID: "j2", Token: token}, nil
		case "broken-store":
			return nil, models.NewInternalError(errors.New("store down"))
		}
		return nil, models.NewUnauthorizedError("bad token")
	}}
}

func newAuthApp(handlers ...fiber.Handler) *fiber.App {
	app := fiber.New()
	handlers = append(handlers, func(c *fiber.Ctx) error {
		uid, _ := c.Locals(LocalUserID).(string)
		return c.SendString("user=" + uid)
	})
	app.Get("/test", handlers...)
	return app
}

func doRequest(t *testing.T, app *fiber.App, target, auth string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestAuthRequired(t *testing.T) {
	app := newAuthApp(AuthRequired(tokenVerifier()))

	tests := []struct {
		name         string
		target       string
		header       string
		expectedCode int
		expectedBody string
	}{
		{"missing token", "/test", "", http.StatusUnauthorized, "Authentication required"},
		{"malformed header", "/test", "Token abc", http.StatusUnauthorized, "Invalid authorization header format"},
		{"empty bearer", "/test", "Bearer ", http.StatusUnauthorized, "Invalid authorization header format"},
		{"unknown token", "/test", "Bearer nope", http.StatusUnauthorized, "Invalid or expired token"},
		{"store failure", "/test", "Bearer broken-store", http.StatusInternalServerError, "Internal server error"},
		{"valid header", "/test", "Bearer user-token", http.StatusOK, "user=u1"},
		{"query token", "/test?token=user-token", "", http.StatusOK, "user=u1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := doRequest(t, app, tt.target, tt.header)
			assert.Equal(t, tt.expectedCode, code)
			assert.Contains(t, body, tt.expectedBody)
		})
	}
}

func TestAuthOptional(t *testing.T) {
	app := newAuthApp(AuthOptional(tokenVerifier()))

	code, body := doRequest(t, app, "/test", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "user=", body)

	code, body = doRequest(t, app, "/test", "Bearer user-token")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "user=u1", body)

	code, _ = doRequest(t, app, "/test", "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestAdminRequired(t *testing.T) {
	app := newAuthApp(AuthRequired(tokenVerifier()), AdminRequired)

	code, body := doRequest(t, app, "/test", "Bearer user-token")
	assert.Equal(t, http.StatusForbidden, code)
	assert.Contains(t, body, models.CodeForbidden)

	code, body = doRequest(t, app, "/test", "Bearer admin-token")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "user=a1", body)
}

func TestCurrentIdentity(t *testing.T) {
	app := fiber.New()
	app.Get("/me", AuthOptional(tokenVerifier()), func(c *fiber.Ctx) error {
		id := CurrentIdentity(c)
		if id == nil {
			return c.SendString("anonymous")
		}
		return c.SendString(id.TokenID)
	})

	_, body := doRequest(t, app, "/me", "")
	assert.Equal(t, "anonymous", body)
	_, body = doRequest(t, app, "/me", "Bearer admin-token")
	assert.Equal(t, "j2", body)
}
