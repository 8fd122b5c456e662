package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/neogan74/tracelog/internal/event"
	"github.com/neogan74/tracelog/internal/logger"
)

// ErrorRecorder accepts error-stream events.
type ErrorRecorder interface {
	Error(ctx context.Context, e *event.Envelope)
}

// FrontendException is the body accepted from browser clients. Levels and
// timestamps are plain strings so an odd value degrades to a default
// instead of rejecting the report.
type FrontendException struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`

	Layer      string `json:"layer"`
	Module     string `json:"module"`
	Function   string `json:"function"`
	LineNumber *int   `json:"line_number"`
	FilePath   string `json:"file_path"`

	TraceID        string `json:"trace_id"`
	RequestID      string `json:"request_id"`
	UserID         string `json:"user_id"`
	IPAddress      string `json:"ip_address"`
	UserAgent      string `json:"user_agent"`
	RequestMethod  string `json:"request_method"`
	RequestPath    string `json:"request_path"`
	RequestData    any    `json:"request_data"`
	ResponseStatus *int   `json:"response_status"`

	ExceptionType    string         `json:"exception_type"`
	ExceptionMessage string         `json:"exception_message"`
	ErrorCode        string         `json:"error_code"`
	StackTrace       string         `json:"stack_trace"`
	ExceptionDetails map[string]any `json:"exception_details"`

	ExtraData map[string]any `json:"extra_data"`
}

// FrontendHandler ingests exceptions reported by browser clients.
type FrontendHandler struct {
	rec ErrorRecorder
	log logger.Logger
}

// NewFrontendHandler creates a new frontend exception handler
func NewFrontendHandler(rec ErrorRecorder, log logger.Logger) *FrontendHandler {
	return &FrontendHandler{rec: rec, log: log}
}

// Report records the posted exception on the error stream with source
// frontend. Request metadata missing from the body is taken from the
// request itself. Any well-formed body is acknowledged with 200.
func (h *FrontendHandler) Report(c *fiber.Ctx) error {
	var body FrontendException
	if err := c.BodyParser(&body); err != nil {
		h.log.Debug("Malformed frontend exception", logger.Error(err), logger.String("ip", c.IP()))
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	h.rec.Error(c.UserContext(), body.envelope(c))
	return c.JSON(fiber.Map{"status": "ok"})
}

func (b *FrontendException) envelope(c *fiber.Ctx) *event.Envelope {
	e := &event.Envelope{
		Source:           event.SourceFrontend,
		Level:            event.LevelError,
		Message:          b.Message,
		Layer:            b.Layer,
		Module:           b.Module,
		Function:         b.Function,
		LineNumber:       b.LineNumber,
		FilePath:         b.FilePath,
		TraceID:          b.TraceID,
		RequestID:        b.RequestID,
		UserID:           b.UserID,
		IPAddress:        b.IPAddress,
		UserAgent:        b.UserAgent,
		RequestMethod:    b.RequestMethod,
		RequestPath:      b.RequestPath,
		RequestData:      b.RequestData,
		ResponseStatus:   b.ResponseStatus,
		ExceptionType:    b.ExceptionType,
		ExceptionMessage: b.ExceptionMessage,
		ErrorCode:        b.ErrorCode,
		StackTrace:       b.StackTrace,
		ExceptionDetails: b.ExceptionDetails,
		ExtraData:        b.ExtraData,
	}
	if l, err := event.ParseLevel(b.Level); err == nil {
		e.Level = l
	}
	if ts, ok := parseClientTime(b.Timestamp); ok {
		e.Timestamp = ts
	}

	// Browsers report the page that failed, so method and path of this
	// request are only a fallback.
	if e.IPAddress == "" {
		e.IPAddress = c.IP()
	}
	if e.UserAgent == "" {
		e.UserAgent = c.Get(fiber.HeaderUserAgent)
	}
	if e.RequestMethod == "" {
		e.RequestMethod = c.Method()
	}
	if e.RequestPath == "" {
		e.RequestPath = c.Path()
	}

	if e.ExceptionType == "" {
		e.ExceptionType = "Error"
	}
	if e.ExceptionMessage == "" {
		e.ExceptionMessage = e.Message
	}
	if e.Message == "" {
		e.Message = e.ExceptionMessage
	}
	return e
}

func parseClientTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := event.ParseTime(s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
