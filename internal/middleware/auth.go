package middleware

import (
	"ecofusion-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

const userLocal = "user"

// RequireAuth rejects requests without a session user.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if GetUser(c) == nil {
			return response.Unauthorized(c, "Unauthorized")
		}
		return c.Next()
	}
}

// RequireWallet rejects session users that have no wallet account bound. Every ledger write is
// signed by that account.
func RequireWallet() fiber.Handler {
	return func(c *fiber.Ctx) error {
		acct, ok := AccountFromContext(c)
		if !ok {
			return response.Unauthorized(c, "Unauthorized")
		}
		if acct.Address == "" {
			return response.Error(c, "A wallet account is required for this action", fiber.StatusForbidden, nil)
		}
		return c.Next()
	}
}

// GetUser returns the session user from Locals (nil if not logged in).
func GetUser(c *fiber.Ctx) interface{} {
	return c.Locals(userLocal)
}
