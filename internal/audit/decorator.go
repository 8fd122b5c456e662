// Package audit wraps handlers so that every invocation leaves an audit
// record. A failed invocation additionally records the error; the error
// itself is always returned to the caller untouched.
package audit

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/neogan74/tracelog/internal/correlation"
	"github.com/neogan74/tracelog/internal/event"
)

const (
	// ResourceIDKey is the Locals key a handler may set to name the
	// resource it created or touched.
	ResourceIDKey = "resource_id"
	// errorLoggedKey marks a request whose error has already been recorded.
	errorLoggedKey = "tracelog.error_logged"

	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Recorder is the part of the logging facade the decorator needs.
type Recorder interface {
	Audit(ctx context.Context, e *event.Envelope)
	Exception(ctx context.Context, err error, e *event.Envelope)
}

// Config names what a wrapped operation does.
type Config struct {
	Action       string
	ResourceType string
	// Authenticated marks the operation as requiring a principal, so a
	// missing user id is reported.
	Authenticated bool
}

// Wrap runs fn and records its outcome. The result and error of fn are
// returned as is.
func Wrap[T any](ctx context.Context, rec Recorder, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	v, err := fn(ctx)

	e := newEvent(cfg, correlation.From(ctx).UserID)
	if err != nil {
		recordFailure(ctx, rec, cfg, e, err)
		return v, err
	}
	e.ResourceID = IDOf(v)
	e.SetExtra("outcome", outcomeSuccess)
	rec.Audit(ctx, e)
	return v, nil
}

// Handler decorates a fiber handler. Client address and agent are taken
// before the handler runs; the response status is never changed.
func Handler(rec Recorder, cfg Config, h fiber.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ip := c.IP()
		ua := c.Get(fiber.HeaderUserAgent)
		method := c.Method()

		err := h(c)

		ctx := c.UserContext()
		conf := cfg
		if conf.Action == "" {
			conf.Action = ActionForMethod(c)
		}
		user := correlation.From(ctx).UserID
		if user == "" {
			user = UserFromLocals(c)
		}

		e := newEvent(conf, user)
		e.IPAddress = ip
		e.UserAgent = ua
		e.ResourceID = ResourceIDFromRequest(c)
		if method != fiber.MethodGet && method != fiber.MethodHead {
			if hash := HashRequestBody(c.Body()); hash != "" {
				e.SetExtra("request_hash", hash)
			}
		}

		if err != nil {
			c.Locals(errorLoggedKey, true)
			recordFailure(ctx, rec, conf, e, err)
			return err
		}
		e.ResponseStatus = event.Int(c.Response().StatusCode())
		e.SetExtra("outcome", outcomeSuccess)
		rec.Audit(ctx, e)
		return nil
	}
}

// ErrorLogged reports whether the decorator already recorded the error of
// this request.
func ErrorLogged(c *fiber.Ctx) bool {
	logged, _ := c.Locals(errorLoggedKey).(bool)
	return logged
}

func newEvent(cfg Config, user string) *event.Envelope {
	return &event.Envelope{
		Level:         event.LevelInfo,
		Action:        cfg.Action,
		ResourceType:  cfg.ResourceType,
		UserID:        user,
		Authenticated: cfg.Authenticated || user != "",
	}
}

func recordFailure(ctx context.Context, rec Recorder, cfg Config, e *event.Envelope, err error) {
	code := ErrorCode(err)

	rec.Exception(ctx, err, &event.Envelope{
		Level:     event.LevelError,
		Message:   strings.TrimSpace(cfg.Action+" "+cfg.ResourceType) + " failed",
		Layer:     "audit",
		UserID:    e.UserID,
		IPAddress: e.IPAddress,
		UserAgent: e.UserAgent,
		ErrorCode: code,
		ExtraData: map[string]any{"action": cfg.Action, "resource_type": cfg.ResourceType},
	})

	e.Level = event.LevelWarning
	e.SetExtra("outcome", outcomeFailure)
	e.SetExtra("error_code", code)
	rec.Audit(ctx, e)
}
