package middleware

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Logger is the process-wide structured logger. It adds request, user and
// trace ids found in the context to every record.
var Logger *slog.Logger

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	UserIDKey    contextKey = "user_id"
	TraceIDKey   contextKey = "trace_id"
)

var contextAttrs = []struct {
	key  contextKey
	name string
}{
	{RequestIDKey, "request_id"},
	{UserIDKey, "user_id"},
	{TraceIDKey, "trace_id"},
}

type ctxHandler struct {
	slog.Handler
}

func (h *ctxHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, a := range contextAttrs {
		if v, ok := ctx.Value(a.key).(string); ok && v != "" {
			r.AddAttrs(slog.String(a.name, v))
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ctxHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ctxHandler{h.Handler.WithAttrs(attrs)}
}

func (h *ctxHandler) WithGroup(name string) slog.Handler {
	return &ctxHandler{h.Handler.WithGroup(name)}
}

// NewLogger builds the context-aware logger. Production writes JSON, other
// environments write text.
func NewLogger(w io.Writer, env, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if strings.EqualFold(level, "debug") {
		opts.Level = slog.LevelDebug
	}
	var handler slog.Handler
	if env == "production" || env == "prod" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(&ctxHandler{handler})
}

func init() {
	Logger = NewLogger(os.Stdout, os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
}

// ContextMiddleware copies the request id, user id and trace id from Fiber
// locals into the request context so service code logs them too.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		ctx = withLocal(c, ctx, "requestid", RequestIDKey)
		// Auth middleware runs per route group, after this one, and refreshes user_id itself.
		ctx = withLocal(c, ctx, LocalUserID, UserIDKey)
		ctx = withLocal(c, ctx, LocalTraceID, TraceIDKey)
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func withLocal(c *fiber.Ctx, ctx context.Context, local string, key contextKey) context.Context {
	if v, ok := c.Locals(local).(string); ok && v != "" {
		return context.WithValue(ctx, key, v)
	}
	return ctx
}

// StructuredLogger logs one record per request. Client errors log at warn,
// server errors at error, and health probes only at debug.
func StructuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		fields := []any{
			slog.Int("status", status),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("ip", c.IP()),
			slog.Duration("latency", time.Since(start)),
			slog.Int("bytes", len(c.Response().Body())),
		}
		if action := c.Query("action"); action != "" {
			fields = append(fields, slog.String("action", action))
		}

		// Auth stores user_id in the context after this handler ran, so the
		// record picks it up from there.
		ctx := c.UserContext()
		switch {
		case err != nil:
			fields = append(fields, slog.String("error", err.Error()))
			Logger.ErrorContext(ctx, "request failed", fields...)
		case status >= fiber.StatusInternalServerError:
			Logger.ErrorContext(ctx, "request failed", fields...)
		case strings.HasPrefix(c.Path(), "/health"):
			Logger.DebugContext(ctx, "request processed", fields...)
		case status >= fiber.StatusBadRequest:
			Logger.WarnContext(ctx, "request rejected", fields...)
		default:
			Logger.InfoContext(ctx, "request processed", fields...)
		}
		return err
	}
}
