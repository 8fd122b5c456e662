package middleware

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/neogan74/tracelog/internal/event"
	"github.com/neogan74/tracelog/internal/metrics"
)

// DefaultSlowRequest is the duration above which a request is recorded as
// a performance event.
const DefaultSlowRequest = time.Second

// Performance records HTTP metrics for every request and a performance
// event for requests slower than threshold.
func Performance(rec Recorder, threshold time.Duration) fiber.Handler {
	if threshold <= 0 {
		threshold = DefaultSlowRequest
	}
	return func(c *fiber.Ctx) error {
		// Skip metrics endpoint to avoid infinite loop
		if c.Path() == "/metrics" {
			return c.Next()
		}

		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()

		start := time.Now()
		err := c.Next()
		elapsed := time.Since(start)

		code := c.Response().StatusCode()
		var fe *fiber.Error
		if asFiberError(err, &fe) {
			code = fe.Code
		} else if err != nil {
			code = fiber.StatusInternalServerError
		}
		status := strconv.Itoa(code)
		route := c.Route().Path

		metrics.HTTPRequestsTotal.WithLabelValues(c.Method(), route, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Method(), route, status).Observe(elapsed.Seconds())

		if elapsed >= threshold {
			rec.Performance(c.UserContext(), &event.Envelope{
				Level:          event.LevelWarning,
				Message:        "slow request: " + c.Method() + " " + route,
				Function:       route,
				ResponseStatus: event.Int(code),
				DurationMS:     event.Millis(elapsed),
				ExtraData:      map[string]any{"threshold_ms": threshold.Milliseconds()},
			})
		}

		return err
	}
}

func asFiberError(err error, target **fiber.Error) bool {
	return err != nil && errors.As(err, target)
}
