package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/safiri/internal/core/domain"
	"github.com/samirrijal/safiri/internal/core/ports"
)

const identityKey = "identity"

// bearerToken returns the token of an "Authorization: Bearer <token>" header.
func bearerToken(c *fiber.Ctx) string {
	scheme, token, ok := strings.Cut(c.Get(fiber.HeaderAuthorization), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// AuthMiddleware verifies the bearer token and stores the caller in Locals.
func AuthMiddleware(identity ports.Identity) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return errUnauthorized(c, "missing bearer token")
		}
		id, err := identity.VerifyToken(c.UserContext(), token)
		if err != nil {
			LoggerFromCtx(c.UserContext()).Debug("token rejected", "error", err)
			return errUnauthorized(c, "invalid token")
		}
		c.Locals(identityKey, id)
		return c.Next()
	}
}

func identityFrom(c *fiber.Ctx) domain.Identity {
	id, _ := c.Locals(identityKey).(domain.Identity)
	return id
}
