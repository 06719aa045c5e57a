package server

import (
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUserHidesPrivateFields(t *testing.T) {
	env := newTestEnv(t)
	env.upload(t, env.aliceToken, "Wall Bracket")

	resp, body := env.do(t, http.MethodGet, "/api/users/"+env.aliceID, nil, env.bobToken)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	user := body["user"].(map[string]any)
	assert.Equal(t, "alice", user["username"])
	assert.NotContains(t, user, "email")
	assert.Len(t, body["models"], 1)

	resp, body = env.do(t, http.MethodGet, "/api/users/"+env.aliceID, nil, env.aliceToken)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice@example.com", body["user"].(map[string]any)["email"])

	resp, body = env.do(t, http.MethodGet, "/api/users/"+env.aliceID, nil, env.adminToken)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice@example.com", body["user"].(map[string]any)["email"])

	resp, _ = env.do(t, http.MethodGet, "/api/users/missing", nil, "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestGetUserDefaultsToCaller(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/action?action=get_user", nil, env.bobToken)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, env.bobID, body["user"].(map[string]any)["id"])
}

func TestUpdateUser(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPut, "/api/users/"+env.aliceID,
		map[string]any{"bio": "Makes brackets", "location": "Denver"}, env.aliceToken)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	user := body["user"].(map[string]any)
	assert.Equal(t, "Makes brackets", user["bio"])
	assert.Equal(t, "Denver", user["location"])

	resp, body = env.do(t, http.MethodPut, "/api/users/"+env.aliceID, map[string]any{"bio": "hacked"}, env.bobToken)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", body["code"])

	resp, _ = env.do(t, http.MethodPut, "/api/users/"+env.aliceID, map[string]any{"is_admin": true}, env.aliceToken)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, body = env.do(t, http.MethodPut, "/api/users/"+env.aliceID, map[string]any{"is_admin": true}, env.adminToken)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, true, body["user"].(map[string]any)["is_admin"])

	resp, body = env.do(t, http.MethodPut, "/api/users/"+env.adminID, map[string]any{"is_admin": false}, env.adminToken)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CONFLICT", body["code"])
}

func TestUpdateUserPasswordThroughAction(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/action",
		map[string]any{"action": "update_user", "password": "newsecret"}, env.bobToken)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)

	resp, _ = env.do(t, http.MethodPost, "/api/auth/login",
		map[string]any{"username": "bob", "password": "secret1"}, "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, "/api/auth/login",
		map[string]any{"username": "bob", "password": "newsecret"}, "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode, body)
}

func TestDeleteUser(t *testing.T) {
	env := newTestEnv(t)
	modelID := env.upload(t, env.bobToken, "Phone Stand")

	resp, _ := env.do(t, http.MethodDelete, "/api/users/"+env.bobID, nil, env.aliceToken)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = env.do(t, http.MethodDelete, "/api/users/"+env.adminID, nil, env.adminToken)
	assert.NotEqual(t, fiber.StatusOK, resp.StatusCode)

	resp, body := env.do(t, http.MethodDelete, "/api/users/"+env.bobID, nil, env.adminToken)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "User deleted", body["message"])

	resp, _ = env.do(t, http.MethodGet, "/api/models/"+modelID, nil, "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/auth/me", nil, env.bobToken)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestCategoryRoutes(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/categories",
		map[string]any{"name": "Home Decor", "icon": "house"}, env.adminToken)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, "home-decor", body["category"].(map[string]any)["id"])

	resp, body = env.do(t, http.MethodPost, "/api/categories", map[string]any{"name": "Home Decor"}, env.adminToken)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, "home-decor-1", body["category"].(map[string]any)["id"])
	resp, _ = env.do(t, http.MethodDelete, "/api/categories/home-decor-1", nil, env.adminToken)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body = env.do(t, http.MethodPut, "/api/categories/home-decor",
		map[string]any{"description": "Vases and frames"}, env.adminToken)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	cat := body["category"].(map[string]any)
	assert.Equal(t, "Vases and frames", cat["description"])
	assert.Equal(t, "Home Decor", cat["name"])

	resp, _ = env.do(t, http.MethodPut, "/api/categories/home-decor", map[string]any{"name": "x"}, env.aliceToken)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	env.upload(t, env.aliceToken, "Wall Bracket")
	resp, body = env.do(t, http.MethodDelete, "/api/categories/tools", nil, env.adminToken)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode, body)

	resp, body = env.do(t, http.MethodDelete, "/api/categories/home-decor", nil, env.adminToken)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "Category deleted", body["message"])

	resp, body = env.do(t, http.MethodGet, "/api/categories", nil, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	cats := body["categories"].([]any)
	require.Len(t, cats, 1)
	assert.Equal(t, float64(1), cats[0].(map[string]any)["count"])
}
