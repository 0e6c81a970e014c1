package admin

import (
	"context"

	"ecofusion-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

type Handlers struct {
	// Reconcile runs one reconciliation pass and reports how many mirror rows changed.
	Reconcile func(ctx context.Context) (int, error)
}

// RunReconcile POST /api/v1/admin/reconcile
func (h *Handlers) RunReconcile(c *fiber.Ctx) error {
	changed, err := h.Reconcile(c.UserContext())
	if err != nil {
		log.Warn().Err(err).Int("changed", changed).Msg("manual reconcile failed")
		return response.FromError(c, err)
	}
	return response.Success(c, "Reconciliation complete", fiber.Map{"changed": changed}, nil)
}
