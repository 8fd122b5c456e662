package audit

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neogan74/tracelog/internal/correlation"
	"github.com/neogan74/tracelog/internal/event"
)

type recorded struct {
	ctx context.Context
	err error
	e   *event.Envelope
}

type fakeRecorder struct {
	mu         sync.Mutex
	audits     []recorded
	exceptions []recorded
}

func (f *fakeRecorder) Audit(ctx context.Context, e *event.Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audits = append(f.audits, recorded{ctx: ctx, e: e})
}

func (f *fakeRecorder) Exception(ctx context.Context, err error, e *event.Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exceptions = append(f.exceptions, recorded{ctx: ctx, err: err, e: e})
}

type member struct {
	ID   int
	Name string
}

func TestWrapSuccess(t *testing.T) {
	rec := &fakeRecorder{}
	ctx := correlation.With(context.Background(), correlation.Fields{TraceID: "t1", UserID: "u1"})

	got, err := Wrap(ctx, rec, Config{Action: "create", ResourceType: "member"}, func(context.Context) (*member, error) {
		return &member{ID: 7, Name: "kim"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "kim", got.Name)

	require.Len(t, rec.audits, 1)
	assert.Empty(t, rec.exceptions)
	e := rec.audits[0].e
	assert.Equal(t, "create", e.Action)
	assert.Equal(t, "member", e.ResourceType)
	assert.Equal(t, "7", e.ResourceID)
	assert.Equal(t, "u1", e.UserID)
	assert.True(t, e.Authenticated)
	assert.Equal(t, "success", e.ExtraData["outcome"])
	assert.Equal(t, "t1", correlation.TraceID(rec.audits[0].ctx))
}

type validationError struct{ msg string }

func (e *validationError) Error() string     { return e.msg }
func (e *validationError) ErrorCode() string { return "INVALID" }

func TestWrapFailurePropagatesSameError(t *testing.T) {
	rec := &fakeRecorder{}
	want := &validationError{msg: "bad"}

	_, err := Wrap(context.Background(), rec, Config{Action: "update", ResourceType: "post"}, func(context.Context) (string, error) {
		return "", want
	})
	assert.Same(t, want, err)

	require.Len(t, rec.exceptions, 1)
	assert.Same(t, want, rec.exceptions[0].err)
	assert.Equal(t, "update post failed", rec.exceptions[0].e.Message)

	require.Len(t, rec.audits, 1)
	e := rec.audits[0].e
	assert.Equal(t, event.LevelWarning, e.Level)
	assert.Equal(t, "failure", e.ExtraData["outcome"])
	assert.Equal(t, "INVALID", e.ExtraData["error_code"])
	assert.False(t, e.Authenticated)
}

func TestIDOf(t *testing.T) {
	type withID struct{ ID string }
	type lower struct{ Id int64 }

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"struct pointer", &member{ID: 3}, "3"},
		{"struct string id", withID{ID: "abc"}, "abc"},
		{"Id field", lower{Id: 9}, "9"},
		{"zero id", member{}, ""},
		{"map", map[string]any{"id": "m1"}, "m1"},
		{"map without id", map[string]any{"name": "x"}, ""},
		{"scalar", 42, ""},
		{"nil pointer", (*member)(nil), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IDOf(tt.in))
		})
	}
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "INVALID", ErrorCode(&validationError{}))
	assert.Equal(t, "404", ErrorCode(fiber.NewError(fiber.StatusNotFound, "missing")))
	assert.Equal(t, "", ErrorCode(errors.New("plain")))
}

func TestHandlerSuccessKeepsStatus(t *testing.T) {
	rec := &fakeRecorder{}
	app := fiber.New()
	app.Post("/members", Handler(rec, Config{ResourceType: "member"}, func(c *fiber.Ctx) error {
		c.Locals("user_id", "u9")
		c.Locals(ResourceIDKey, "m-1")
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": "m-1"})
	}))

	req := httptest.NewRequest("POST", "/members", strings.NewReader(`{"name":"kim"}`))
	req.Header.Set("User-Agent", "test-agent")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	require.Len(t, rec.audits, 1)
	e := rec.audits[0].e
	assert.Equal(t, "create", e.Action)
	assert.Equal(t, "m-1", e.ResourceID)
	assert.Equal(t, "u9", e.UserID)
	assert.Equal(t, "test-agent", e.UserAgent)
	assert.NotEmpty(t, e.IPAddress)
	assert.Equal(t, fiber.StatusCreated, *e.ResponseStatus)
	assert.Equal(t, HashRequestBody([]byte(`{"name":"kim"}`)), e.ExtraData["request_hash"])
}

func TestHandlerFailureMarksErrorLogged(t *testing.T) {
	rec := &fakeRecorder{}
	var logged bool
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			logged = ErrorLogged(c)
			return fiber.DefaultErrorHandler(c, err)
		},
	})
	app.Delete("/members/:id", Handler(rec, Config{Action: "delete", ResourceType: "member", Authenticated: true}, func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusForbidden, "not yours")
	}))

	resp, err := app.Test(httptest.NewRequest("DELETE", "/members/42", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.True(t, logged)

	require.Len(t, rec.exceptions, 1)
	require.Len(t, rec.audits, 1)
	e := rec.audits[0].e
	assert.Equal(t, "42", e.ResourceID)
	assert.Equal(t, "403", e.ExtraData["error_code"])
	assert.True(t, e.Authenticated)
	assert.Empty(t, e.UserID)
}

func TestActionForMethod(t *testing.T) {
	app := fiber.New()
	var got []string
	h := func(c *fiber.Ctx) error {
		got = append(got, ActionForMethod(c))
		return nil
	}
	app.Get("/items", h)
	app.Get("/items/:id", h)
	app.Put("/items/:id", h)
	app.Delete("/items/:id", h)

	for _, r := range []struct{ method, path string }{
		{"GET", "/items"}, {"GET", "/items/1"}, {"PUT", "/items/1"}, {"DELETE", "/items/1"},
	} {
		_, err := app.Test(httptest.NewRequest(r.method, r.path, nil))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"list", "read", "update", "delete"}, got)
}
