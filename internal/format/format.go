// Package format renders envelopes as single-line JSON objects with a fixed
// key order.
package format

import (
	"bytes"
	"errors"
	"time"
	"unicode/utf8"

	json "github.com/goccy/go-json"

	"github.com/neogan74/tracelog/internal/event"
	"github.com/neogan74/tracelog/internal/metrics"
)

// MaxMessageBytes caps the rendered message.
const MaxMessageBytes = 4 << 10

// FallbackMessage is the message of the line written when an event cannot
// be rendered.
const FallbackMessage = "log-format-failure"

var errEncodePanic = errors.New("format: value encoder panicked")

// Pair is one rendered key and its value.
type Pair struct {
	Key   string
	Value any
}

// Pairs returns the present fields of e in canonical order. A zero
// timestamp is replaced by the current KST time.
func Pairs(e *event.Envelope) []Pair {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = event.Now()
	}
	source := e.Source
	if source == "" {
		source = event.SourceBackend
	}
	level := e.Level
	if !level.Valid() {
		level = event.LevelInfo
	}

	pairs := make([]Pair, 0, 16)
	pairs = append(pairs,
		Pair{"timestamp", event.FormatTime(ts)},
		Pair{"source", string(source)},
		Pair{"level", level.String()},
		Pair{"message", TruncateMessage(e.Message)},
	)

	add := func(key string, value any, present bool) {
		if present {
			pairs = append(pairs, Pair{key, value})
		}
	}
	str := func(key, value string) { add(key, value, value != "") }

	str("layer", e.Layer)
	str("module", e.Module)
	str("function", e.Function)
	if e.LineNumber != nil {
		add("line_number", *e.LineNumber, true)
	}
	str("file_path", e.FilePath)

	str("trace_id", e.TraceID)
	str("request_id", e.RequestID)
	str("user_id", e.UserID)
	str("ip_address", e.IPAddress)
	str("user_agent", e.UserAgent)
	str("request_method", e.RequestMethod)
	str("request_path", e.RequestPath)
	add("request_data", e.RequestData, e.RequestData != nil)
	if e.ResponseStatus != nil {
		add("response_status", *e.ResponseStatus, true)
	}
	if e.DurationMS != nil {
		add("duration_ms", *e.DurationMS, true)
	}

	str("exception_type", e.ExceptionType)
	str("exception_message", e.ExceptionMessage)
	str("error_code", e.ErrorCode)
	str("stack_trace", e.StackTrace)
	add("exception_details", e.ExceptionDetails, len(e.ExceptionDetails) > 0)

	str("logger_name", e.LoggerName)
	if e.ProcessID != nil {
		add("process_id", *e.ProcessID, true)
	}
	str("thread_name", e.ThreadName)

	str("action", e.Action)
	str("resource_type", e.ResourceType)
	str("resource_id", e.ResourceID)

	add("extra_data", e.ExtraData, len(e.ExtraData) > 0)
	return pairs
}

// Line renders e as one JSON object terminated by a newline. If any value
// cannot be encoded the fallback line is returned instead.
func Line(e *event.Envelope) []byte {
	if e == nil {
		return Fallback(event.Now())
	}
	line, err := encode(Pairs(e))
	if err != nil {
		metrics.FormatFailuresTotal.Inc()
		return Fallback(e.Timestamp)
	}
	return line
}

// Fallback renders the minimal line used when formatting fails.
func Fallback(ts time.Time) []byte {
	if ts.IsZero() {
		ts = event.Now()
	}
	line, _ := encode([]Pair{
		{"timestamp", event.FormatTime(ts)},
		{"source", string(event.SourceSystem)},
		{"level", event.LevelError.String()},
		{"message", FallbackMessage},
	})
	return line
}

func encode(pairs []Pair) (line []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			line, err = nil, errEncodePanic
		}
	}()

	var buf bytes.Buffer
	buf.Grow(256)
	buf.WriteByte('{')
	for i, p := range pairs {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(p.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(p.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// TruncateMessage cuts s to at most MaxMessageBytes without splitting a
// UTF-8 sequence.
func TruncateMessage(s string) string {
	if len(s) <= MaxMessageBytes {
		return s
	}
	cut := MaxMessageBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
