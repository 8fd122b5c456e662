package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/neogan74/tracelog/internal/audit"
	"github.com/neogan74/tracelog/internal/event"
)

// Recorder is the part of the logging facade the middleware uses.
type Recorder interface {
	Exception(ctx context.Context, err error, e *event.Envelope)
	Performance(ctx context.Context, e *event.Envelope)
}

// ErrorResponse represents a structured error response
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message,omitempty"`
	TraceID   string    `json:"trace_id,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path,omitempty"`
}

// ErrorHandler records handler errors on the error stream, once per
// request, and answers with an ErrorResponse. Errors already recorded by
// the audit decorator are not recorded again.
func ErrorHandler(rec Recorder) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		message := "internal server error"
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
			message = fe.Message
		}

		if !audit.ErrorLogged(c) {
			level := event.LevelError
			if status < fiber.StatusInternalServerError {
				level = event.LevelWarning
			}
			rec.Exception(c.UserContext(), err, &event.Envelope{
				Level:          level,
				Message:        "request failed: " + err.Error(),
				Layer:          "http",
				ResponseStatus: event.Int(status),
				ErrorCode:      audit.ErrorCode(err),
			})
		}

		return errorResponse(c, status, message)
	}
}

// BadRequest returns a 400 Bad Request error response
func BadRequest(c *fiber.Ctx, message string) error {
	return errorResponse(c, fiber.StatusBadRequest, message)
}

// NotFound returns a 404 Not Found error response
func NotFound(c *fiber.Ctx, message string) error {
	return errorResponse(c, fiber.StatusNotFound, message)
}

// InternalServerError returns a 500 Internal Server Error response
func InternalServerError(c *fiber.Ctx, message string) error {
	return errorResponse(c, fiber.StatusInternalServerError, message)
}

func errorResponse(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(ErrorResponse{
		Error:     statusText(status),
		Message:   message,
		TraceID:   GetTraceID(c),
		RequestID: GetRequestID(c),
		Timestamp: event.Now(),
		Path:      c.Path(),
	})
}

func statusText(status int) string {
	if text := utils.StatusMessage(status); text != "" {
		return text
	}
	return "Error"
}
