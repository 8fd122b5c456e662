// Package correlation carries request-scoped identifiers through a
// context.Context so any log call inside a request can pick them up.
package correlation

import (
	"context"

	"github.com/google/uuid"

	"github.com/neogan74/tracelog/internal/event"
)

type contextKey string

const fieldsKey contextKey = "correlation_fields"

// Fields are the request-scoped values merged into every event.
type Fields struct {
	TraceID       string
	RequestID     string
	UserID        string
	IPAddress     string
	UserAgent     string
	RequestMethod string
	RequestPath   string
}

// NewTraceID returns a fresh UUID v4 string.
func NewTraceID() string {
	return uuid.NewString()
}

// With returns a context carrying f. Child contexts inherit it.
func With(ctx context.Context, f Fields) context.Context {
	return context.WithValue(ctx, fieldsKey, f)
}

// From returns the fields stored in ctx, or zero Fields.
func From(ctx context.Context) Fields {
	if ctx == nil {
		return Fields{}
	}
	f, _ := ctx.Value(fieldsKey).(Fields)
	return f
}

// Clear returns a context derived from ctx with no correlation fields, for
// background work that must not be attributed to the spawning request.
func Clear(ctx context.Context) context.Context {
	return context.WithValue(ctx, fieldsKey, Fields{})
}

// WithUserID returns a context whose fields carry userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	f := From(ctx)
	f.UserID = userID
	return With(ctx, f)
}

// TraceID is a shorthand for From(ctx).TraceID.
func TraceID(ctx context.Context) string {
	return From(ctx).TraceID
}

// Fill copies f into the empty fields of e. Values already set on e win.
func (f Fields) Fill(e *event.Envelope) {
	fill(&e.TraceID, f.TraceID)
	fill(&e.RequestID, f.RequestID)
	fill(&e.UserID, f.UserID)
	fill(&e.IPAddress, f.IPAddress)
	fill(&e.UserAgent, f.UserAgent)
	fill(&e.RequestMethod, f.RequestMethod)
	fill(&e.RequestPath, f.RequestPath)
}

func fill(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}
