package middleware

import (
	"strings"

	"github.com/fathima-sithara/classroom-chat/internal/auth"
	"github.com/fathima-sithara/classroom-chat/internal/domain"
	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IdentityKey is the Locals key holding the caller identity.
const IdentityKey = "identity"

// TokenValidator is satisfied by auth.JWTValidator.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// IdentityFromClaims turns token claims into a caller identity.
func IdentityFromClaims(c *auth.Claims) (domain.Identity, bool) {
	id, err := primitive.ObjectIDFromHex(c.Subject)
	if err != nil {
		return domain.Identity{}, false
	}
	return domain.Identity{UserID: id, Role: c.Role, TenantID: c.TenantID}, true
}

// RequireAuth validates the bearer token and stores the caller identity in
// Locals. user_id is kept for handlers that only need the id.
func RequireAuth(v TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		h := c.Get("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		if h == "" || token == h {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "missing bearer token"})
		}
		claims, err := v.Validate(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "invalid token"})
		}
		ident, ok := IdentityFromClaims(claims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "invalid token subject"})
		}
		c.Locals(IdentityKey, ident)
		c.Locals("user_id", ident.UserID.Hex())
		return c.Next()
	}
}

// Identity returns the caller stored by RequireAuth.
func Identity(c *fiber.Ctx) (domain.Identity, bool) {
	ident, ok := c.Locals(IdentityKey).(domain.Identity)
	return ident, ok
}
