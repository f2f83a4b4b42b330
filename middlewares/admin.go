package middlewares

import (
	"strings"

	"bimbridge/helpers"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AdminAuth validates a bearer token signed with the admin secret and
// carrying role=admin. The admin subject is stored on the request context
// for audit attribution.
func AdminAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			return helpers.JSONErrorStatus(c, fiber.StatusUnauthorized, "ADMIN_TOKEN_REQUIRED")
		}

		claims := &AdminClaims{}
		token, err := jwt.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), claims,
			func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
		if err != nil || !token.Valid || claims.Role != "admin" {
			return helpers.JSONErrorStatus(c, fiber.StatusUnauthorized, "INVALID_ADMIN_TOKEN")
		}

		c.Locals("admin_subject", claims.Subject)
		return c.Next()
	}
}
