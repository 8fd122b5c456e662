// Package redact masks sensitive values in arbitrary JSON-compatible payloads
// before they reach any sink.
package redact

import (
	"fmt"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/neogan74/tracelog/internal/event"
	"github.com/neogan74/tracelog/internal/logger"
	"github.com/neogan74/tracelog/internal/metrics"
)

const (
	// Mask replaces the value of every sensitive key.
	Mask = "***"
	// Truncated replaces values nested deeper than MaxDepth.
	Truncated = "<…>"
	// Unserializable replaces values that cannot be encoded as JSON.
	Unserializable = "<unserializable>"

	// MaxDepth is the deepest nesting level that is walked.
	MaxDepth = 16
)

// DefaultSensitiveFields are always masked, whatever the configuration adds.
var DefaultSensitiveFields = []string{
	"password",
	"password_hash",
	"reset_token",
	"secret",
	"authorization",
	"api_key",
	"cookie",
	"set-cookie",
	"access_token",
	"refresh_token",
}

// Redactor returns deep copies of payloads with sensitive keys masked.
// It is safe for concurrent use.
type Redactor struct {
	names    map[string]struct{}
	log      logger.Logger
	warnOnce sync.Once
}

// New builds a Redactor from the defaults plus extra field names.
func New(extra []string, log logger.Logger) *Redactor {
	if log == nil {
		log = logger.GetDefault()
	}
	names := make(map[string]struct{}, len(DefaultSensitiveFields)+len(extra))
	for _, n := range DefaultSensitiveFields {
		names[n] = struct{}{}
	}
	for _, n := range extra {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			names[n] = struct{}{}
		}
	}
	return &Redactor{names: names, log: log}
}

// Fields returns the configured sensitive names.
func (r *Redactor) Fields() []string {
	out := make([]string, 0, len(r.names))
	for n := range r.names {
		out = append(out, n)
	}
	return out
}

// IsSensitive reports whether key names a sensitive field.
func (r *Redactor) IsSensitive(key string) bool {
	_, ok := r.names[strings.ToLower(key)]
	return ok
}

// Redact returns a deep copy of v with every sensitive mapping value
// replaced by Mask. It never panics and never returns an error.
func (r *Redactor) Redact(v any) any {
	return r.walk(v, 0)
}

// RedactMap is Redact specialised for the envelope's map fields.
func (r *Redactor) RedactMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return r.walkMap(m, 0)
}

// Envelope returns a copy of e whose free-form payloads are redacted.
func (r *Redactor) Envelope(e *event.Envelope) *event.Envelope {
	out := e.Clone()
	if out.RequestData != nil {
		out.RequestData = r.Redact(out.RequestData)
	}
	out.ExceptionDetails = r.RedactMap(out.ExceptionDetails)
	out.ExtraData = r.RedactMap(out.ExtraData)
	return out
}

func (r *Redactor) walk(v any, depth int) any {
	if depth > MaxDepth {
		return Truncated
	}

	switch val := v.(type) {
	case nil, string, bool, json.Number,
		float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return val
	case map[string]any:
		return r.walkMap(val, depth)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = r.walk(item, depth+1)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if r.IsSensitive(k) {
				out[k] = Mask
			} else {
				out[k] = item
			}
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	default:
		normalized, ok := r.normalize(val)
		if !ok {
			return Unserializable
		}
		return r.walk(normalized, depth)
	}
}

func (r *Redactor) walkMap(m map[string]any, depth int) map[string]any {
	out := make(map[string]any, len(m))
	for k, item := range m {
		if r.IsSensitive(k) {
			out[k] = Mask
			continue
		}
		out[k] = r.walk(item, depth+1)
	}
	return out
}

// normalize turns structs, typed maps and other encodable values into the
// generic map/slice/scalar form so their keys can be inspected.
func (r *Redactor) normalize(v any) (out any, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.reportUnserializable(v, nil)
			out, ok = nil, false
		}
	}()

	data, err := json.Marshal(v)
	if err != nil {
		r.reportUnserializable(v, err)
		return nil, false
	}
	if err := json.Unmarshal(data, &out); err != nil {
		r.reportUnserializable(v, err)
		return nil, false
	}
	return out, true
}

func (r *Redactor) reportUnserializable(v any, err error) {
	metrics.RedactionErrorsTotal.Inc()
	r.warnOnce.Do(func() {
		fields := []logger.Field{logger.String("type", typeName(v))}
		if err != nil {
			fields = append(fields, logger.Error(err))
		}
		r.log.Warn("Substituted unserializable log value", fields...)
	})
}

func typeName(v any) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", v), "*")
}
