package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	applog "keycrate/internal/log"
	"keycrate/internal/repos"
)

// RequireOwner authenticates one of the two administrators: X-Owner-Id names
// the principal, the bearer token is checked against its bcrypt hash. Both
// owners pass the same gate with equal capability.
func RequireOwner(owners *repos.OwnerRepo) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ownerID := c.Get("X-Owner-Id")
		token := strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		if ownerID == "" || token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "owner credentials required"})
		}

		owner, err := owners.Get(ownerID)
		if err != nil {
			applog.Security(c, "access.denied.owner", map[string]any{"owner_id": ownerID})
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "access denied"})
		}
		if bcrypt.CompareHashAndPassword([]byte(owner.TokenHash), []byte(token)) != nil {
			applog.Security(c, "access.denied.token", map[string]any{"owner_id": ownerID})
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "access denied"})
		}

		c.Locals("owner_id", owner.ID)
		return c.Next()
	}
}
