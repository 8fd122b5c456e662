package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/neogan74/tracelog/internal/correlation"
)

const (
	// TraceIDHeader carries the trace id in and out of the service.
	TraceIDHeader = "X-Trace-ID"
	// RequestIDHeader carries an optional caller-chosen request id.
	RequestIDHeader = "X-Request-ID"

	// TraceIDKey and RequestIDKey are the Locals keys of the ids.
	TraceIDKey   = "trace_id"
	RequestIDKey = "request_id"
)

var traceContext = propagation.TraceContext{}

// Correlation opens the request-scoped logging context. The trace id is
// taken from X-Trace-ID, then from a W3C traceparent header, and is
// generated otherwise. It is echoed in the X-Trace-ID response header.
func Correlation() fiber.Handler {
	return func(c *fiber.Ctx) error {
		traceID := c.Get(TraceIDHeader)
		if traceID == "" {
			traceID = traceparentID(c)
		}
		if traceID == "" {
			traceID = correlation.NewTraceID()
		}
		requestID := c.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		fields := correlation.From(c.UserContext())
		fields.TraceID = traceID
		fields.RequestID = requestID
		fields.IPAddress = c.IP()
		fields.UserAgent = c.Get(fiber.HeaderUserAgent)
		fields.RequestMethod = c.Method()
		fields.RequestPath = c.Path()

		c.SetUserContext(correlation.With(c.UserContext(), fields))
		c.Locals(TraceIDKey, traceID)
		c.Locals(RequestIDKey, requestID)
		c.Set(TraceIDHeader, traceID)

		return c.Next()
	}
}

func traceparentID(c *fiber.Ctx) string {
	ctx := traceContext.Extract(c.UserContext(), &fiberCarrier{c: c})
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// GetTraceID returns the trace id of the request.
func GetTraceID(c *fiber.Ctx) string {
	if id, ok := c.Locals(TraceIDKey).(string); ok {
		return id
	}
	return ""
}

// GetRequestID returns the request ID from the context
func GetRequestID(c *fiber.Ctx) string {
	if requestID, ok := c.Locals(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// fiberCarrier adapts fiber.Ctx to propagation.TextMapCarrier
type fiberCarrier struct {
	c *fiber.Ctx
}

func (fc *fiberCarrier) Get(key string) string {
	return fc.c.Get(key)
}

func (fc *fiberCarrier) Set(key, value string) {
	fc.c.Set(key, value)
}

func (fc *fiberCarrier) Keys() []string {
	keys := make([]string, 0)
	fc.c.Request().Header.VisitAll(func(key, _ []byte) {
		keys = append(keys, string(key))
	})
	return keys
}
