package middleware

import (
	"strings"

	"bookstore/internal/services"

	"github.com/gofiber/fiber/v2"
)

const (
	localUserID   = "user_id"
	localUsername = "username"
	localIsAdmin  = "is_admin"
)

// TokenValidator is satisfied by services.AuthService.
type TokenValidator interface {
	ValidateToken(tokenString string) (*services.Claims, error)
}

// AuthRequired is a Fiber middleware to check for a valid JWT token.
func AuthRequired(auth TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return services.Unauthorized("Authorization header is required")
		}

		// Expected format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return services.Unauthorized("Authorization header format must be 'Bearer <token>'")
		}

		claims, err := auth.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			return err
		}

		c.Locals(localUserID, claims.UserID)
		c.Locals(localUsername, claims.Username)
		c.Locals(localIsAdmin, claims.IsAdmin)
		return c.Next()
	}
}

// AdminRequired rejects authenticated users without the admin flag. It must
// run after AuthRequired.
func AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !IsAdmin(c) {
			return services.Forbidden("Admin privileges required")
		}
		return c.Next()
	}
}

// UserID returns the authenticated user's ID, or "" outside AuthRequired.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(localUserID).(string)
	return id
}

// Username returns the authenticated user's name.
func Username(c *fiber.Ctx) string {
	name, _ := c.Locals(localUsername).(string)
	return name
}

func IsAdmin(c *fiber.Ctx) bool {
	admin, _ := c.Locals(localIsAdmin).(bool)
	return admin
}
