package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
)

// AuthConfig holds configuration for the operator auth middleware.
type AuthConfig struct {
	// Secret is the HMAC secret used to validate operator tokens. Empty
	// disables authentication entirely.
	Secret string
}

// AuthMiddleware returns a Fiber middleware validating a Bearer JWT (HS256)
// on protected routes. Invalid or missing tokens get a 401 without touching
// any handler state.
func AuthMiddleware(cfg AuthConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cfg.Secret == "" {
			return c.Next()
		}

		authHeader := c.Get("Authorization")
		var token string
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		}

		if token == "" {
			c.Set("WWW-Authenticate", `Bearer realm="dca-executor"`)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Missing or invalid Bearer token",
			})
		}

		parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		})
		if err != nil || !parsed.Valid {
			c.Set("WWW-Authenticate", `Bearer realm="dca-executor"`)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Invalid token",
			})
		}

		return c.Next()
	}
}
