package event

import (
	"fmt"
	"strings"
	"time"
)

// Source identifies which side of the system produced an event.
type Source string

const (
	SourceBackend  Source = "backend"
	SourceFrontend Source = "frontend"
	SourceSystem   Source = "system"
)

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	switch s {
	case SourceBackend, SourceFrontend, SourceSystem:
		return true
	}
	return false
}

// Level is the severity of an event. Higher values are more severe.
type Level int

const (
	LevelDebug Level = iota + 1
	LevelInfo
	LevelWarning
	LevelError
	LevelCritical
)

var levelNames = map[Level]string{
	LevelDebug:    "DEBUG",
	LevelInfo:     "INFO",
	LevelWarning:  "WARNING",
	LevelError:    "ERROR",
	LevelCritical: "CRITICAL",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	_, ok := levelNames[l]
	return ok
}

// ParseLevel parses a level name case-insensitively. "warn", "err" and
// "fatal" are accepted as aliases.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARNING", "WARN":
		return LevelWarning, nil
	case "ERROR", "ERR":
		return LevelError, nil
	case "CRITICAL", "FATAL":
		return LevelCritical, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid log level %d", int(l))
	}
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Stream is one of the four logical log channels.
type Stream string

const (
	StreamApplication Stream = "application"
	StreamError       Stream = "error"
	StreamAudit       Stream = "audit"
	StreamSystem      Stream = "system"
)

// Streams lists every stream in a stable order.
var Streams = []Stream{StreamApplication, StreamError, StreamAudit, StreamSystem}

// Table returns the remote table that receives rows for the stream.
func (s Stream) Table() string {
	switch s {
	case StreamApplication:
		return "app_logs"
	case StreamError:
		return "error_logs"
	case StreamAudit:
		return "audit_logs"
	case StreamSystem:
		return "system_logs"
	default:
		return ""
	}
}

// Envelope is the canonical event shape shared by all streams. Zero values
// are treated as absent and omitted from the rendered line.
type Envelope struct {
	Timestamp time.Time `json:"timestamp"`
	Source    Source    `json:"source"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`

	Layer      string `json:"layer,omitempty"`
	Module     string `json:"module,omitempty"`
	Function   string `json:"function,omitempty"`
	LineNumber *int   `json:"line_number,omitempty"`
	FilePath   string `json:"file_path,omitempty"`

	TraceID        string   `json:"trace_id,omitempty"`
	RequestID      string   `json:"request_id,omitempty"`
	UserID         string   `json:"user_id,omitempty"`
	IPAddress      string   `json:"ip_address,omitempty"`
	UserAgent      string   `json:"user_agent,omitempty"`
	RequestMethod  string   `json:"request_method,omitempty"`
	RequestPath    string   `json:"request_path,omitempty"`
	RequestData    any      `json:"request_data,omitempty"`
	ResponseStatus *int     `json:"response_status,omitempty"`
	DurationMS     *float64 `json:"duration_ms,omitempty"`

	ExceptionType    string         `json:"exception_type,omitempty"`
	ExceptionMessage string         `json:"exception_message,omitempty"`
	ErrorCode        string         `json:"error_code,omitempty"`
	StackTrace       string         `json:"stack_trace,omitempty"`
	ExceptionDetails map[string]any `json:"exception_details,omitempty"`

	LoggerName string `json:"logger_name,omitempty"`
	ProcessID  *int   `json:"process_id,omitempty"`
	ThreadName string `json:"thread_name,omitempty"`

	Action       string `json:"action,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`

	ExtraData map[string]any `json:"extra_data,omitempty"`

	// Authenticated marks an audit event as the record of an action taken
	// by a logged-in principal; such events must carry UserID.
	Authenticated bool `json:"-"`
}

// Clone returns a copy of e. Maps are copied one level deep; nested values
// are shared until the redactor rebuilds them.
func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return &Envelope{}
	}
	c := *e
	if e.LineNumber != nil {
		v := *e.LineNumber
		c.LineNumber = &v
	}
	if e.ResponseStatus != nil {
		v := *e.ResponseStatus
		c.ResponseStatus = &v
	}
	if e.DurationMS != nil {
		v := *e.DurationMS
		c.DurationMS = &v
	}
	if e.ProcessID != nil {
		v := *e.ProcessID
		c.ProcessID = &v
	}
	c.ExceptionDetails = copyMap(e.ExceptionDetails)
	c.ExtraData = copyMap(e.ExtraData)
	return &c
}

// SetExtra stores key in ExtraData, allocating the map when needed.
func (e *Envelope) SetExtra(key string, value any) {
	if e.ExtraData == nil {
		e.ExtraData = make(map[string]any)
	}
	e.ExtraData[key] = value
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Int returns a pointer to v, for the optional integer fields.
func Int(v int) *int { return &v }

// Float returns a pointer to v, for the optional float fields.
func Float(v float64) *float64 { return &v }

// Millis converts d to fractional milliseconds.
func Millis(d time.Duration) *float64 {
	return Float(float64(d.Microseconds()) / 1000)
}
