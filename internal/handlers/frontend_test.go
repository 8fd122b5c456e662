package handlers

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neogan74/tracelog/internal/correlation"
	"github.com/neogan74/tracelog/internal/event"
	"github.com/neogan74/tracelog/internal/logger"
	"github.com/neogan74/tracelog/internal/middleware"
)

type recordedError struct {
	fields correlation.Fields
	e      *event.Envelope
}

type errorRecorder struct {
	mu     sync.Mutex
	events []recordedError
}

func (r *errorRecorder) Error(ctx context.Context, e *event.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedError{fields: correlation.From(ctx), e: e})
}

func newFrontendApp(rec *errorRecorder) *fiber.App {
	app := fiber.New()
	app.Use(middleware.Correlation())
	app.Post("/api/v1/exceptions/frontend", NewFrontendHandler(rec, logger.NewNop()).Report)
	return app
}

func post(t *testing.T, app *fiber.App, body string, headers map[string]string) (int, string) {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/exceptions/frontend", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestFrontendReportUsesRequestMetadata(t *testing.T) {
	rec := &errorRecorder{}
	app := newFrontendApp(rec)

	status, body := post(t, app, `{
		"level": "ERROR",
		"message": "TypeError: x is undefined",
		"exception_type": "TypeError",
		"exception_message": "x is undefined",
		"source": "backend"
	}`, map[string]string{
		middleware.TraceIDHeader: "t7",
		"User-Agent":             "Mozilla/5.0",
	})

	assert.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	require.Len(t, rec.events, 1)
	got := rec.events[0]
	assert.Equal(t, event.SourceFrontend, got.e.Source)
	assert.Equal(t, event.LevelError, got.e.Level)
	assert.Equal(t, "TypeError", got.e.ExceptionType)
	assert.Equal(t, "Mozilla/5.0", got.e.UserAgent)
	assert.Equal(t, "POST", got.e.RequestMethod)
	assert.NotEmpty(t, got.e.IPAddress)
	assert.Empty(t, got.e.TraceID, "trace id comes from the request context")
	assert.Equal(t, "t7", got.fields.TraceID)
}

func TestFrontendReportBodyWins(t *testing.T) {
	rec := &errorRecorder{}
	app := newFrontendApp(rec)

	status, _ := post(t, app, `{
		"level": "warning",
		"message": "chunk load failed",
		"trace_id": "browser-trace",
		"request_path": "/orders/12",
		"request_method": "GET",
		"timestamp": "2024-03-01T10:00:00Z",
		"extra_data": {"component": "OrderList"}
	}`, map[string]string{middleware.TraceIDHeader: "header-trace"})

	assert.Equal(t, fiber.StatusOK, status)
	require.Len(t, rec.events, 1)
	e := rec.events[0].e
	assert.Equal(t, "browser-trace", e.TraceID)
	assert.Equal(t, "/orders/12", e.RequestPath)
	assert.Equal(t, "GET", e.RequestMethod)
	assert.Equal(t, event.LevelWarning, e.Level)
	assert.Equal(t, "Error", e.ExceptionType)
	assert.Equal(t, "chunk load failed", e.ExceptionMessage)
	assert.Equal(t, "2024-03-01 19:00:00.000", event.FormatTime(e.Timestamp))
	assert.Equal(t, "OrderList", e.ExtraData["component"])
}

func TestFrontendReportOddLevelDefaultsToError(t *testing.T) {
	rec := &errorRecorder{}
	app := newFrontendApp(rec)

	status, _ := post(t, app, `{"level":"loud","message":"m","timestamp":"yesterday"}`, nil)

	assert.Equal(t, fiber.StatusOK, status)
	require.Len(t, rec.events, 1)
	assert.Equal(t, event.LevelError, rec.events[0].e.Level)
	assert.True(t, rec.events[0].e.Timestamp.IsZero())
}

func TestFrontendReportMalformedBody(t *testing.T) {
	rec := &errorRecorder{}
	app := newFrontendApp(rec)

	status, _ := post(t, app, `{"message":`, nil)

	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Empty(t, rec.events)
}
