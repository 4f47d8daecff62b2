package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/raga-mitra/raga_mitra/internal/auth"
)

// JWTAuth validates bearer session tokens and rejects revoked ones.
func JWTAuth(svc *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		claims, err := svc.Authorize(c.UserContext(), tokenStr)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid or revoked token")
		}

		c.Locals(auth.LocalUserID, claims.UserID)
		c.Locals("token_version", claims.Version)
		return c.Next()
	}
}
