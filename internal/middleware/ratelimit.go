package middleware

import (
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/neogan74/tracelog/internal/ratelimit"
)

// RateLimit limits requests per client IP. A nil store disables limiting.
func RateLimit(store *ratelimit.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if store == nil {
			return c.Next()
		}
		ip := c.IP()
		if store.Allow(ip) {
			return c.Next()
		}
		retry := int(math.Ceil(store.RetryAfter(ip).Seconds()))
		if retry < 1 {
			retry = 1
		}
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retry))
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":       "rate_limit_exceeded",
			"retry_after": retry,
		})
	}
}
