package audit

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"reflect"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/neogan74/tracelog/internal/event"
)

// ActionForMethod derives the audit verb from an HTTP method when a route
// does not name one.
func ActionForMethod(c *fiber.Ctx) string {
	switch c.Method() {
	case fiber.MethodPost:
		return "create"
	case fiber.MethodPut, fiber.MethodPatch:
		return "update"
	case fiber.MethodDelete:
		return "delete"
	case fiber.MethodGet:
		if c.Params("id") != "" {
			return "read"
		}
		return "list"
	default:
		return "invoke"
	}
}

// UserFromLocals returns the principal set by the JWT middleware.
func UserFromLocals(c *fiber.Ctx) string {
	if uid, ok := c.Locals("user_id").(string); ok {
		return uid
	}
	return ""
}

// ResourceIDFromRequest prefers an id the handler stored in Locals over
// the route's id parameter.
func ResourceIDFromRequest(c *fiber.Ctx) string {
	switch v := c.Locals(ResourceIDKey).(type) {
	case string:
		if v != "" {
			return v
		}
	case fmt.Stringer:
		return v.String()
	}
	if id := c.Params("id"); id != "" {
		return id
	}
	return c.Params("key")
}

// HashRequestBody returns the hex SHA-256 of body so the audit trail can
// prove what was submitted without storing it.
func HashRequestBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	return fmt.Sprintf("%x", sha256.Sum256(body))
}

type identifier interface {
	GetID() string
}

// IDOf extracts an identifier from a handler result: a GetID method, an ID
// field on a struct, or an "id" key in a map. It returns "" when none exists.
func IDOf(v any) string {
	if v == nil {
		return ""
	}
	if i, ok := v.(identifier); ok {
		return i.GetID()
	}
	if m, ok := v.(map[string]any); ok {
		if id, ok := m["id"]; ok && id != nil {
			return fmt.Sprint(id)
		}
		return ""
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return ""
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return ""
	}
	for _, name := range []string{"ID", "Id"} {
		f := rv.FieldByName(name)
		if !f.IsValid() || !f.CanInterface() || f.IsZero() {
			continue
		}
		return fmt.Sprint(f.Interface())
	}
	return ""
}

// ErrorCode returns the code carried by err: an ErrorCode method, or the
// status of a *fiber.Error.
func ErrorCode(err error) string {
	if code := event.FromError(err, 0).Code; code != "" {
		return code
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return strconv.Itoa(fe.Code)
	}
	return ""
}
