package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Logger
	Logger = NewLogger(&buf, "production", "debug")
	t.Cleanup(func() { Logger = prev })
	return &buf
}

func TestNewLoggerFormats(t *testing.T) {
	var text, js bytes.Buffer
	NewLogger(&text, "development", "").Info("hello")
	NewLogger(&js, "production", "").Info("hello")

	assert.Contains(t, text.String(), "msg=hello")
	assert.Contains(t, js.String(), `"msg":"hello"`)

	var quiet bytes.Buffer
	NewLogger(&quiet, "production", "info").Debug("hidden")
	assert.Empty(t, quiet.String())
}

func TestCtxHandlerAddsContextValues(t *testing.T) {
	buf := captureLogger(t)

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	ctx = context.WithValue(ctx, UserIDKey, "user-1")
	Logger.With(slog.String("component", "test")).InfoContext(ctx, "hello")

	assert.Contains(t, buf.String(), `"request_id":"req-1"`)
	assert.Contains(t, buf.String(), `"user_id":"user-1"`)
	assert.Contains(t, buf.String(), `"component":"test"`)
	assert.NotContains(t, buf.String(), `"trace_id"`)
}

func TestStructuredLoggerLevels(t *testing.T) {
	app := fiber.New()
	app.Use(requestid.New())
	app.Use(ContextMiddleware())
	app.Use(StructuredLogger())
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })
	app.Get("/bad", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusBadRequest) })
	app.Get("/boom", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusInternalServerError) })
	app.Get("/health/live", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	tests := []struct {
		path  string
		level string
		msg   string
	}{
		{"/ok?action=get_stats", "INFO", "request processed"},
		{"/bad", "WARN", "request rejected"},
		{"/boom", "ERROR", "request failed"},
		{"/health/live", "DEBUG", "request processed"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			buf := captureLogger(t)

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.NoError(t, err)
			_ = resp.Body.Close()

			out := buf.String()
			assert.Contains(t, out, `"level":"`+tt.level+`"`)
			assert.Contains(t, out, `"msg":"`+tt.msg+`"`)
			assert.Contains(t, out, `"request_id"`)
		})
	}

	t.Run("action is logged", func(t *testing.T) {
		buf := captureLogger(t)
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ok?action=get_stats", nil))
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Contains(t, buf.String(), `"action":"get_stats"`)
	})
}
