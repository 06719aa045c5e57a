package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/morroware/FEC-STL-sub000/internal/middleware"
	"github.com/morroware/FEC-STL-sub000/internal/models"
	"github.com/morroware/FEC-STL-sub000/internal/service"
)

// Fiber locals private to this package.
const (
	localAction   = "action"
	localJSONBody = "jsonBody"
)

// statusFor maps an AppError code to its HTTP status.
func statusFor(err error) int {
	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		return fiber.StatusInternalServerError
	}
	switch appErr.Code {
	case models.CodeValidation:
		return fiber.StatusBadRequest
	case models.CodeUnauthorized:
		return fiber.StatusUnauthorized
	case models.CodeForbidden:
		return fiber.StatusForbidden
	case models.CodeNotFound:
		return fiber.StatusNotFound
	case models.CodeConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err with the status its code maps to. Server errors
// are logged with their detail, which never reaches the client.
func respondError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		middleware.Logger.ErrorContext(c.UserContext(), "request failed",
			slog.String("path", c.Path()),
			slog.String("action", actionName(c)),
			slog.String("error", err.Error()),
		)
	}
	return models.RespondWithError(c, status, err)
}

// respond writes a successful JSON body. Every success carries success=true.
func respond(c *fiber.Ctx, status int, body fiber.Map) error {
	if body == nil {
		body = fiber.Map{}
	}
	body["success"] = true
	return c.Status(status).JSON(body)
}

// createdStatus is 201 on the REST routes and 200 through the action
// endpoint, whose clients expect 200 for every success.
func createdStatus(c *fiber.Ctx) int {
	if actionName(c) != "" {
		return fiber.StatusOK
	}
	return fiber.StatusCreated
}

func actionName(c *fiber.Ctx) string {
	name, _ := c.Locals(localAction).(string)
	return name
}

// actorFrom returns the caller resolved by the auth middleware.
func actorFrom(c *fiber.Ctx) service.Actor {
	id := middleware.CurrentIdentity(c)
	if id == nil {
		return service.Actor{}
	}
	return service.Actor{ID: id.UserID, IsAdmin: id.IsAdmin}
}

// param reads a request value from the route, the query string, a form
// field or a JSON body, in that order. REST routes carry ids in the path;
// action requests carry them anywhere else.
func param(c *fiber.Ctx, key string) string {
	if v := c.Params(key); v != "" {
		return v
	}
	if v := c.Query(key); v != "" {
		return v
	}
	if !isJSON(c) {
		return c.FormValue(key)
	}
	switch v := jsonBody(c)[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// intParam parses an integer request value, falling back to def when the
// value is missing or not a number.
func intParam(c *fiber.Ctx, key string, def int) int {
	v := strings.TrimSpace(param(c, key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func isJSON(c *fiber.Ctx) bool {
	return strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEApplicationJSON)
}

// jsonBody decodes a JSON object body once per request.
func jsonBody(c *fiber.Ctx) map[string]any {
	if cached, ok := c.Locals(localJSONBody).(map[string]any); ok {
		return cached
	}
	body := map[string]any{}
	if len(c.Body()) > 0 {
		_ = json.Unmarshal(c.Body(), &body)
	}
	c.Locals(localJSONBody, body)
	return body
}

// bind decodes a JSON or form body into out. An empty body leaves out untouched.
func bind(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return models.NewValidationError("Invalid request body")
	}
	return nil
}

// tagList accepts tags as a JSON array or as one comma separated string.
type tagList []string

func (t *tagList) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*t = list
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return t.UnmarshalText([]byte(s))
}

func (t *tagList) UnmarshalText(b []byte) error {
	*t = splitTags(string(b))
	return nil
}

func splitTags(values ...string) []string {
	var out []string
	for _, v := range values {
		for _, tag := range strings.Split(v, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				out = append(out, tag)
			}
		}
	}
	return out
}

// settingsMap accepts print settings as a JSON object or as a JSON encoded
// string, which is how multipart forms carry it. Non-string values are kept
// in their JSON text form.
type settingsMap map[string]string

func (m *settingsMap) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return m.UnmarshalText([]byte(s))
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(settingsMap, len(raw))
	for k, v := range raw {
		var str string
		if json.Unmarshal(v, &str) == nil {
			out[k] = str
			continue
		}
		out[k] = string(v)
	}
	*m = out
	return nil
}

func (m *settingsMap) UnmarshalText(b []byte) error {
	if strings.TrimSpace(string(b)) == "" {
		*m = settingsMap{}
		return nil
	}
	return m.UnmarshalJSON(b)
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}
