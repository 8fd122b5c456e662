package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/neogan74/tracelog/internal/logger"
)

// RequestLogging reports completed requests on the framework logger.
// Successful requests are logged at debug, client errors at warn and
// server errors at error, so only failures reach the system stream.
func RequestLogging(log logger.Logger) fiber.Handler {
	log = log.Named("http")
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			var fe *fiber.Error
			status = fiber.StatusInternalServerError
			if asFiberError(err, &fe) {
				status = fe.Code
			}
		}
		fields := []logger.Field{
			logger.String("method", c.Method()),
			logger.String("path", c.Path()),
			logger.Int("status", status),
			logger.Duration("duration", time.Since(start)),
			logger.String("trace_id", GetTraceID(c)),
			logger.String("ip", c.IP()),
		}

		switch {
		case status >= 500:
			log.Error("Request completed", fields...)
		case status >= 400:
			log.Warn("Request completed", fields...)
		default:
			log.Debug("Request completed", fields...)
		}

		return err
	}
}
