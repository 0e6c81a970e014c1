package rounds

import (
	"context"
	"strconv"
	"time"

	roundsvc "ecofusion-backend/internal/application/rounds"
	"ecofusion-backend/internal/domain"
	"ecofusion-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type Handlers struct {
	Service *roundsvc.Service
}

type createRequest struct {
	TargetAmount *decimal.Decimal `json:"target_amount"`
	StartDate    *time.Time       `json:"start_date"`
	EndDate      *time.Time       `json:"end_date"`
	TopicID      *string          `json:"topic_id"`
}

type progressRequest struct {
	Delta *decimal.Decimal `json:"delta"`
}

// List GET /api/v1/rounds
func (h *Handlers) List(c *fiber.Ctx) error {
	list, err := h.Service.ListRounds(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.List(c, "Rounds retrieved", list)
}

// Get GET /api/v1/rounds/:round_number
func (h *Handlers) Get(c *fiber.Ctx) error {
	n, ok := roundNumber(c)
	if !ok {
		return response.Error(c, "Invalid round number", fiber.StatusBadRequest, nil)
	}
	round, err := h.Service.GetRound(c.UserContext(), n)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Round retrieved", round, nil)
}

// Create POST /api/v1/rounds (admin)
func (h *Handlers) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	if req.TargetAmount == nil {
		return response.Error(c, "Missing required field: target_amount", fiber.StatusBadRequest, nil)
	}
	round, err := h.Service.CreateRound(c.UserContext(), roundsvc.CreateRoundInput{
		TargetAmount: *req.TargetAmount,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		TopicID:      req.TopicID,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Round created", round, nil)
}

// Activate POST /api/v1/rounds/:round_number/activate (admin)
func (h *Handlers) Activate(c *fiber.Ctx) error {
	return h.transition(c, "Round activated", h.Service.ActivateRound)
}

// Certify POST /api/v1/rounds/:round_number/certify (admin)
func (h *Handlers) Certify(c *fiber.Ctx) error {
	return h.transition(c, "Round certified", h.Service.CertifyRound)
}

// Complete POST /api/v1/rounds/:round_number/complete (admin)
func (h *Handlers) Complete(c *fiber.Ctx) error {
	return h.transition(c, "Round completed", h.Service.CompleteRound)
}

// Progress POST /api/v1/rounds/:round_number/progress (admin), body {"delta": "12.5"}
func (h *Handlers) Progress(c *fiber.Ctx) error {
	n, ok := roundNumber(c)
	if !ok {
		return response.Error(c, "Invalid round number", fiber.StatusBadRequest, nil)
	}
	var req progressRequest
	if err := c.BodyParser(&req); err != nil || req.Delta == nil {
		return response.Error(c, "Missing required field: delta", fiber.StatusBadRequest, nil)
	}
	round, err := h.Service.RecordProgress(c.UserContext(), n, *req.Delta)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Round progress recorded", round, nil)
}

func (h *Handlers) transition(c *fiber.Ctx, message string, fn func(context.Context, int) (*domain.VerraRound, error)) error {
	n, ok := roundNumber(c)
	if !ok {
		return response.Error(c, "Invalid round number", fiber.StatusBadRequest, nil)
	}
	round, err := fn(c.UserContext(), n)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, message, round, nil)
}

func roundNumber(c *fiber.Ctx) (int, bool) {
	n, err := strconv.Atoi(c.Params("round_number"))
	return n, err == nil && n > 0
}
