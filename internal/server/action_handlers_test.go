package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionTableCoversEveryAction(t *testing.T) {
	env := newTestEnv(t)

	for _, name := range []string{
		"login", "register", "logout", "check_auth",
		"get_models", "get_model", "upload_model", "update_model", "delete_model",
		"download_model", "like_model", "favorite_model",
		"get_categories", "create_category", "update_category", "delete_category",
		"get_users", "get_user", "update_user", "delete_user",
		"get_stats",
	} {
		assert.Contains(t, env.srv.actionTable, name)
	}
}

func TestActionRejectsMissingAndUnknownActions(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/action", nil, "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "No action specified", body["error"])

	resp, body = env.do(t, http.MethodPost, "/api/action", map[string]any{"action": "drop_tables"}, "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Unknown action: drop_tables", body["error"])
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
}

func TestActionReadsNameFromEverySource(t *testing.T) {
	env := newTestEnv(t)

	t.Run("query", func(t *testing.T) {
		resp, body := env.do(t, http.MethodGet, "/api/action?action=get_categories", nil, "")
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["success"])
		assert.Len(t, body["categories"], 1)
	})

	t.Run("json body", func(t *testing.T) {
		resp, body := env.do(t, http.MethodPost, "/api/action", map[string]any{"action": " GET_STATS "}, "")
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		stats := body["stats"].(map[string]any)
		assert.Equal(t, float64(3), stats["total_users"])
	})

	t.Run("form", func(t *testing.T) {
		form := url.Values{"action": {"login"}, "username": {"alice"}, "password": {"secret1"}}
		req := httptest.NewRequest(http.MethodPost, "/api/action", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, body := env.send(t, req, "")
		require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
		assert.NotEmpty(t, body["token"])
	})
}

func TestActionRegisterReturns200(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/action", map[string]any{
		"action":   "register",
		"username": "dave",
		"email":    "dave@example.com",
		"password": "secret1",
	}, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["token"])
}

func TestActionModelLifecycle(t *testing.T) {
	env := newTestEnv(t)

	req := multipartRequest(t, "/api/action", map[string]string{
		"action":         "upload_model",
		"title":          "Cable Clip",
		"category":       "tools",
		"print_settings": `{"infill":"15%","supports":false}`,
		"has_color[]":    "1",
	}, formFile{field: "files[]", name: "clip.stl", data: []byte("solid clip")})
	resp, body := env.send(t, req, env.aliceToken)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	model := body["model"].(map[string]any)
	id := model["id"].(string)
	assert.Equal(t, map[string]any{"infill": "15%", "supports": "false"}, model["print_settings"])
	files := model["files"].([]any)
	require.Len(t, files, 1)
	assert.Equal(t, true, files[0].(map[string]any)["has_color"])

	resp, body = env.do(t, http.MethodGet, "/api/action?action=get_model&id="+id, nil, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "Cable Clip", body["model"].(map[string]any)["title"])
	assert.Equal(t, "alice", body["author"].(map[string]any)["username"])
	assert.Equal(t, false, body["favorited"])

	resp, body = env.do(t, http.MethodPost, "/api/action",
		map[string]any{"action": "update_model", "id": id, "title": "Cable Clip v2", "tags": "cable, desk"}, env.aliceToken)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	updated := body["model"].(map[string]any)
	assert.Equal(t, "Cable Clip v2", updated["title"])
	assert.Equal(t, []any{"cable", "desk"}, updated["tags"])

	resp, body = env.do(t, http.MethodPost, "/api/action",
		map[string]any{"action": "update_model", "id": id, "title": "Stolen"}, env.bobToken)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", body["code"])

	resp, body = env.do(t, http.MethodPost, "/api/action",
		map[string]any{"action": "favorite_model", "id": id}, env.bobToken)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, true, body["favorited"])

	resp, body = env.do(t, http.MethodGet, "/api/action?action=get_favorites", nil, env.bobToken)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Len(t, body["models"], 1)

	resp, body = env.do(t, http.MethodPost, "/api/action",
		map[string]any{"action": "like_model", "id": id}, env.bobToken)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, float64(1), body["likes"])

	dl, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/api/action?action=download_model&id="+id, nil), -1)
	require.NoError(t, err)
	defer dl.Body.Close()
	require.Equal(t, fiber.StatusOK, dl.StatusCode)
	data, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, "solid clip", string(data))

	resp, body = env.do(t, http.MethodPost, "/api/action",
		map[string]any{"action": "delete_model", "id": id}, env.adminToken)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "Model deleted", body["message"])

	resp, body = env.do(t, http.MethodGet, "/api/action?action=get_model&id="+id, nil, "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestActionAuthorization(t *testing.T) {
	env := newTestEnv(t)
	create := map[string]any{"action": "create_category", "name": "Cosplay", "icon": "mask"}

	resp, body := env.do(t, http.MethodPost, "/api/action", create, "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", body["code"])

	resp, body = env.do(t, http.MethodPost, "/api/action", create, env.aliceToken)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", body["code"])

	resp, body = env.do(t, http.MethodPost, "/api/action", create, env.adminToken)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "cosplay", body["category"].(map[string]any)["id"])

	resp, _ = env.do(t, http.MethodGet, "/api/action?action=get_users", nil, env.aliceToken)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/api/action?action=get_users", nil, env.adminToken)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, body["users"], 3)
}
