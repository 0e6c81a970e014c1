package transactions

import (
	txsvc "ecofusion-backend/internal/application/transactions"
	"ecofusion-backend/internal/middleware"
	"ecofusion-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service *txsvc.Service
}

// GET /api/v1/transactions/mine
func (h *Handlers) Mine(c *fiber.Ctx) error {
	acct, ok := middleware.AccountFromContext(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	data, err := h.Service.ListForAccount(c.UserContext(), acct.Address)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.List(c, "Transactions fetched successfully", data)
}

// GET /api/v1/transactions/:tx_ref
func (h *Handlers) Get(c *fiber.Ctx) error {
	acct, ok := middleware.AccountFromContext(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	tx, err := h.Service.GetByTxRef(c.UserContext(), c.Params("tx_ref"))
	if err != nil {
		return response.FromError(c, err)
	}
	if !acct.IsAdmin() && !acct.Owns(tx.Buyer) && !acct.Owns(tx.Seller) {
		return response.Error(c, "transaction not found", fiber.StatusNotFound, nil)
	}
	return response.Success(c, "Transaction fetched successfully", tx, nil)
}
