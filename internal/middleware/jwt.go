package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/neogan74/tracelog/internal/auth"
	"github.com/neogan74/tracelog/internal/correlation"
)

// Principal resolves the user behind a bearer token and stores it for the
// audit decorator and the logging context. Requests without a valid token
// continue anonymously; use RequireUser to reject them.
func Principal(jwtService *auth.JWTService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if jwtService == nil {
			return c.Next()
		}
		token, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return c.Next()
		}
		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			c.Locals("auth_error", err)
			return c.Next()
		}

		userID := claims.Principal()
		c.Locals("user_id", userID)
		c.Locals("username", claims.Username)
		c.Locals("roles", claims.Roles)
		c.Locals("claims", claims)
		c.SetUserContext(correlation.WithUserID(c.UserContext(), userID))

		return c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// RequireUser rejects requests that Principal could not authenticate.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if GetUserID(c) != "" {
			return c.Next()
		}
		msg := "missing authorization header"
		switch c.Locals("auth_error") {
		case auth.ErrTokenExpired:
			msg = "token expired"
		case nil:
		default:
			msg = "invalid token"
		}
		return fiber.NewError(fiber.StatusUnauthorized, msg)
	}
}

// GetUserID returns the user ID from the context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals("user_id").(string); ok {
		return userID
	}
	return ""
}

// GetClaims returns the JWT claims from the context
func GetClaims(c *fiber.Ctx) *auth.Claims {
	if claims, ok := c.Locals("claims").(*auth.Claims); ok {
		return claims
	}
	return nil
}
