package middleware

import (
	"ecofusion-backend/internal/constants"
	"ecofusion-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// AuthorizePermission checks the session user's role against constants.PermissionRoles.
func AuthorizePermission(permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		m, ok := GetUser(c).(map[string]interface{})
		if !ok {
			return response.Unauthorized(c, "Unauthorized")
		}
		role := str(m["role"])
		if role == "" {
			return response.Error(c, "Authorization error", fiber.StatusInternalServerError, nil)
		}
		if roles := constants.PermissionRoles[permission]; len(roles) == 0 {
			return response.Error(c, "Permission configuration error", fiber.StatusInternalServerError, nil)
		}
		if !constants.AllowedRole(permission, role) {
			return response.Error(c, "User is Forbidden from performing this action", fiber.StatusForbidden, nil)
		}
		return c.Next()
	}
}
