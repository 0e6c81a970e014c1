package signatures

import (
	"context"

	"ecofusion-backend/internal/infrastructure/wallet"
	"ecofusion-backend/internal/middleware"
	"ecofusion-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// Inbox is the wallet side of the signing handshake.
type Inbox interface {
	Pending(ctx context.Context, account string) ([]wallet.Request, error)
	Get(ctx context.Context, id string) (*wallet.Request, error)
	Respond(ctx context.Context, account, id string, resp wallet.Response) error
}

type Handlers struct {
	Inbox Inbox
}

type signRequest struct {
	Signature string `json:"signature"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// Pending GET /api/v1/signatures/pending
func (h *Handlers) Pending(c *fiber.Ctx) error {
	acct, ok := middleware.AccountFromContext(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	list, err := h.Inbox.Pending(c.UserContext(), acct.Address)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.List(c, "Pending signing requests", list)
}

// Get GET /api/v1/signatures/:id. Requests for other accounts read as not found.
func (h *Handlers) Get(c *fiber.Ctx) error {
	acct, ok := middleware.AccountFromContext(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	req, err := h.Inbox.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return response.FromError(c, err)
	}
	if !acct.Owns(req.Account) {
		return response.Error(c, "signing request not found or expired", fiber.StatusNotFound, nil)
	}
	return response.Success(c, "Signing request", req, nil)
}

// Sign POST /api/v1/signatures/:id/sign with {"signature": "0x..."}
func (h *Handlers) Sign(c *fiber.Ctx) error {
	var body signRequest
	if err := c.BodyParser(&body); err != nil || body.Signature == "" {
		return response.Error(c, "Missing required field: signature", fiber.StatusBadRequest, nil)
	}
	return h.respond(c, wallet.Response{Approved: true, Signature: body.Signature}, "Signature delivered")
}

// Reject POST /api/v1/signatures/:id/reject
func (h *Handlers) Reject(c *fiber.Ctx) error {
	var body rejectRequest
	_ = c.BodyParser(&body)
	return h.respond(c, wallet.Response{Approved: false, Reason: body.Reason}, "Signing request rejected")
}

func (h *Handlers) respond(c *fiber.Ctx, resp wallet.Response, message string) error {
	acct, ok := middleware.AccountFromContext(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	id := c.Params("id")
	if err := h.Inbox.Respond(c.UserContext(), acct.Address, id, resp); err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, message, fiber.Map{"id": id, "approved": resp.Approved}, nil)
}
