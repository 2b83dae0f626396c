package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/zar/internal/utils"
)

const adminContextKey = "currentAdmin"

// TokenVerifier checks a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (utils.Claims, error)
}

// AdminIdentity is the admin a request was authenticated as.
type AdminIdentity struct {
	ID       uint
	Username string
}

// AuthMiddleware validates bearer tokens and loads the authenticated admin into context.
func AuthMiddleware(tokens TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid authorization header")
		}

		claims, err := tokens.Verify(strings.TrimSpace(parts[1]))
		if err != nil {
			log.Printf("[Auth] rejected token from %s: %v", c.IP(), err)
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		id, ok := claims.Int64Claim("id")
		if !ok || id <= 0 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}
		username, _ := claims.StringClaim("username")

		c.Locals(adminContextKey, AdminIdentity{ID: uint(id), Username: username})
		return c.Next()
	}
}

// GetCurrentAdmin extracts the authenticated admin from context.
func GetCurrentAdmin(c *fiber.Ctx) (AdminIdentity, bool) {
	admin, ok := c.Locals(adminContextKey).(AdminIdentity)
	return admin, ok
}
