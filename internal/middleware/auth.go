package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/eventpass-backend/internal/auth"
)

const actorKey = "actor"

// RequireRole parses the bearer token and admits only the listed roles. The
// resulting auth.Actor is stored in c.Locals for handlers.
func RequireRole(secret string, roles ...auth.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if header == "" || token == header {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing bearer token",
				"code":  "Unauthorized",
			})
		}

		actor, err := auth.ParseToken(secret, token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
				"code":  "Unauthorized",
			})
		}

		allowed := false
		for _, role := range roles {
			if actor.Role == role {
				allowed = true
				break
			}
		}
		if !allowed {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Insufficient role",
				"code":  "Unauthorized",
			})
		}

		c.Locals(actorKey, actor)
		return c.Next()
	}
}

// ActorFrom returns the actor stored by RequireRole, or the anonymous actor.
func ActorFrom(c *fiber.Ctx) auth.Actor {
	actor, _ := c.Locals(actorKey).(auth.Actor)
	return actor
}
