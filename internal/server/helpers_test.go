package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morroware/FEC-STL-sub000/internal/models"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"validation", models.NewValidationError("bad"), fiber.StatusBadRequest},
		{"unauthorized", models.NewUnauthorizedError("who"), fiber.StatusUnauthorized},
		{"forbidden", models.NewForbiddenError("no"), fiber.StatusForbidden},
		{"not found", models.NewNotFoundError("Model", "x"), fiber.StatusNotFound},
		{"conflict", models.NewConflictError("taken"), fiber.StatusConflict},
		{"internal", models.NewInternalError(errors.New("boom")), fiber.StatusInternalServerError},
		{"plain error", errors.New("boom"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, statusFor(tt.err))
		})
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	app := fiber.New()
	app.Get("/fail", func(c *fiber.Ctx) error {
		return respondError(c, models.NewInternalError(errors.New("disk on fire")))
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/fail", nil), -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var body models.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.False(t, body.Success)
	assert.NotContains(t, body.Error, "disk on fire")
}

// paramApp echoes what param, intParam and createdStatus see.
func paramApp() *fiber.App {
	app := fiber.New()
	handler := func(c *fiber.Ctx) error {
		if c.Query("as_action") != "" {
			c.Locals(localAction, "test")
		}
		return c.JSON(fiber.Map{
			"id":      param(c, "id"),
			"page":    intParam(c, "page", 1),
			"flag":    param(c, "flag"),
			"created": createdStatus(c),
		})
	}
	app.All("/items", handler)
	app.All("/items/:id", handler)
	return app
}

func decodeMap(t *testing.T, app *fiber.App, req *http.Request) map[string]any {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	out := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestParamSources(t *testing.T) {
	app := paramApp()

	t.Run("route wins over query", func(t *testing.T) {
		out := decodeMap(t, app, httptest.NewRequest(http.MethodGet, "/items/abc?id=zzz&page=3", nil))
		assert.Equal(t, "abc", out["id"])
		assert.Equal(t, float64(3), out["page"])
		assert.Equal(t, float64(fiber.StatusCreated), out["created"])
	})

	t.Run("form", func(t *testing.T) {
		form := url.Values{"id": {"f1"}, "page": {"nope"}}
		req := httptest.NewRequest(http.MethodPost, "/items?as_action=1", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		out := decodeMap(t, app, req)
		assert.Equal(t, "f1", out["id"])
		assert.Equal(t, float64(1), out["page"])
		assert.Equal(t, float64(fiber.StatusOK), out["created"])
	})

	t.Run("json body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/items",
			strings.NewReader(`{"id":"j1","page":4,"flag":true}`))
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		out := decodeMap(t, app, req)
		assert.Equal(t, "j1", out["id"])
		assert.Equal(t, float64(4), out["page"])
		assert.Equal(t, "true", out["flag"])
	})

	t.Run("malformed json is ignored", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/items", strings.NewReader(`{"id":`))
		req.Header.Set("Content-Type", "application/json")
		out := decodeMap(t, app, req)
		assert.Equal(t, "", out["id"])
	})
}

func TestTagList(t *testing.T) {
	var body struct {
		Tags tagList `json:"tags"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"tags":["a","b"]}`), &body))
	assert.Equal(t, tagList{"a", "b"}, body.Tags)

	require.NoError(t, json.Unmarshal([]byte(`{"tags":" wall , ,mount "}`), &body))
	assert.Equal(t, tagList{"wall", "mount"}, body.Tags)

	assert.Error(t, json.Unmarshal([]byte(`{"tags":42}`), &body))
	assert.Equal(t, []string{"a", "b", "c"}, splitTags("a,b", "c"))
}

func TestSettingsMap(t *testing.T) {
	var body struct {
		Settings settingsMap `json:"print_settings"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"print_settings":{"infill":"20%","walls":3,"supports":true}}`), &body))
	assert.Equal(t, settingsMap{"infill": "20%", "walls": "3", "supports": "true"}, body.Settings)

	require.NoError(t, json.Unmarshal([]byte(`{"print_settings":"{\"nozzle\":\"0.4\"}"}`), &body))
	assert.Equal(t, settingsMap{"nozzle": "0.4"}, body.Settings)

	require.NoError(t, json.Unmarshal([]byte(`{"print_settings":""}`), &body))
	assert.Empty(t, body.Settings)

	assert.Error(t, json.Unmarshal([]byte(`{"print_settings":[1]}`), &body))
}

func TestTruthy(t *testing.T) {
	for _, v := range []string{"1", "true", "ON", " yes "} {
		assert.True(t, truthy(v), v)
	}
	for _, v := range []string{"", "0", "false", "no", "maybe"} {
		assert.False(t, truthy(v), v)
	}
}
