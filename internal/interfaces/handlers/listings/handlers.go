package listings

import (
	"context"
	"time"

	listsvc "ecofusion-backend/internal/application/listings"
	"ecofusion-backend/internal/domain"
	"ecofusion-backend/internal/middleware"
	"ecofusion-backend/internal/pkg/fixedpoint"
	"ecofusion-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Service interface {
	CreateListing(ctx context.Context, acct domain.Account, in listsvc.CreateListingInput) (*domain.Listing, error)
	CancelListing(ctx context.Context, acct domain.Account, id uuid.UUID) (*domain.Listing, error)
	GetListing(ctx context.Context, id uuid.UUID) (*domain.Listing, error)
	ListActiveListings(ctx context.Context) ([]domain.Listing, error)
	ListSellerListings(ctx context.Context, seller string) ([]domain.Listing, error)
	Events(ctx context.Context, id uuid.UUID) ([]domain.ListingEvent, error)
}

type Handlers struct {
	Service Service
}

type createRequest struct {
	Tokens        *fixedpoint.Amount `json:"tokens"`
	PricePerToken *fixedpoint.Amount `json:"price_per_token"`
	TotalPrice    *fixedpoint.Amount `json:"total_price"`
	ExpiresAt     *time.Time         `json:"expires_at"`
	CO2Offset     *decimal.Decimal   `json:"co2_offset"`
}

// CreateListing POST /api/v1/listings/create-listing
func (h *Handlers) CreateListing(c *fiber.Ctx) error {
	acct, ok := middleware.AccountFromContext(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	switch {
	case req.Tokens == nil:
		return response.Error(c, "Missing required field: tokens", fiber.StatusBadRequest, nil)
	case req.PricePerToken == nil:
		return response.Error(c, "Missing required field: price_per_token", fiber.StatusBadRequest, nil)
	case req.ExpiresAt == nil:
		return response.Error(c, "Missing required field: expires_at", fiber.StatusBadRequest, nil)
	}

	listing, err := h.Service.CreateListing(c.UserContext(), acct, listsvc.CreateListingInput{
		Tokens:        *req.Tokens,
		PricePerToken: *req.PricePerToken,
		TotalPrice:    req.TotalPrice,
		ExpiresAt:     *req.ExpiresAt,
		CO2Offset:     req.CO2Offset,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Listing created successfully", listing, nil)
}

// Active GET /api/v1/listings/active
func (h *Handlers) Active(c *fiber.Ctx) error {
	list, err := h.Service.ListActiveListings(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.List(c, "Listings retrieved", list)
}

// Mine GET /api/v1/listings/mine
func (h *Handlers) Mine(c *fiber.Ctx) error {
	acct, ok := middleware.AccountFromContext(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	list, err := h.Service.ListSellerListings(c.UserContext(), acct.Address)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.List(c, "Listings retrieved", list)
}

// Get GET /api/v1/listings/:id, including the listing's event history.
func (h *Handlers) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid listing id", fiber.StatusBadRequest, nil)
	}
	listing, err := h.Service.GetListing(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	events, err := h.Service.Events(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Listing retrieved", fiber.Map{"listing": listing, "events": events}, nil)
}

// Cancel POST /api/v1/listings/:id/cancel
func (h *Handlers) Cancel(c *fiber.Ctx) error {
	acct, ok := middleware.AccountFromContext(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid listing id", fiber.StatusBadRequest, nil)
	}
	listing, err := h.Service.CancelListing(c.UserContext(), acct, id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Listing cancelled", listing, nil)
}
