package actions

import (
	"context"
	"strings"
	"time"

	actionsvc "ecofusion-backend/internal/application/actions"
	"ecofusion-backend/internal/domain"
	"ecofusion-backend/internal/middleware"
	"ecofusion-backend/internal/pkg/apperr"
	"ecofusion-backend/internal/pkg/fixedpoint"
	"ecofusion-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service is the slice of the action lifecycle the HTTP layer calls.
type Service interface {
	Submit(ctx context.Context, acct domain.Account, in actionsvc.SubmitInput) (*domain.Action, error)
	ApplyVerdict(ctx context.Context, acct domain.Account, id uuid.UUID, v actionsvc.Verdict) (*domain.Action, error)
	Claim(ctx context.Context, acct domain.Account, id uuid.UUID) error
	GetAction(ctx context.Context, id uuid.UUID) (*domain.Action, error)
	ListActionsForOwner(ctx context.Context, owner string) ([]domain.Action, error)
	ListPendingActions(ctx context.Context) ([]domain.Action, error)
}

type Handlers struct {
	Service Service
}

type submitRequest struct {
	ActionType  string `json:"action_type"`
	Description string `json:"description"`
	Location    string `json:"location"`
	ActionDate  string `json:"action_date"`
	EvidenceURI string `json:"evidence_uri"`
}

// Submit POST /api/v1/actions/submit
func (h *Handlers) Submit(c *fiber.Ctx) error {
	acct, ok := middleware.AccountFromContext(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	var req submitRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	in := actionsvc.SubmitInput{
		ActionType:  strings.TrimSpace(req.ActionType),
		Description: strings.TrimSpace(req.Description),
		Location:    strings.TrimSpace(req.Location),
		EvidenceURI: strings.TrimSpace(req.EvidenceURI),
	}
	if req.ActionDate != "" {
		d, err := parseDate(req.ActionDate)
		if err != nil {
			return response.Error(c, "action_date must be YYYY-MM-DD or RFC3339", fiber.StatusBadRequest, nil)
		}
		in.ActionDate = &d
	}

	action, err := h.Service.Submit(c.UserContext(), acct, in)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Action submitted", action, nil)
}

// Mine GET /api/v1/actions/mine
func (h *Handlers) Mine(c *fiber.Ctx) error {
	acct, ok := middleware.AccountFromContext(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	list, err := h.Service.ListActionsForOwner(c.UserContext(), acct.Address)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.List(c, "Actions retrieved", list)
}

// Get GET /api/v1/actions/:id. Owners see their own actions; admins see all.
func (h *Handlers) Get(c *fiber.Ctx) error {
	acct, ok := middleware.AccountFromContext(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid action id", fiber.StatusBadRequest, nil)
	}
	action, err := h.Service.GetAction(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	if !acct.IsAdmin() && !acct.Owns(action.Owner) {
		return response.FromError(c, apperr.NotFound("actions.get", "action not found"))
	}
	return response.Success(c, "Action retrieved", action, nil)
}

// Claim POST /api/v1/actions/:id/claim
func (h *Handlers) Claim(c *fiber.Ctx) error {
	acct, ok := middleware.AccountFromContext(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid action id", fiber.StatusBadRequest, nil)
	}
	if err := h.Service.Claim(c.UserContext(), acct, id); err != nil {
		return response.FromError(c, err)
	}
	action, err := h.Service.GetAction(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Action claimed", action, nil)
}

// Pending GET /api/v1/actions/pending (admin)
func (h *Handlers) Pending(c *fiber.Ctx) error {
	list, err := h.Service.ListPendingActions(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.List(c, "Pending actions retrieved", list)
}

type verdictRequest struct {
	Status    string             `json:"status"`
	CO2Impact *decimal.Decimal   `json:"co2Impact"`
	Tokens    *fixedpoint.Amount `json:"tokensMinted"`
	Reason    string             `json:"reason"`
}

// Verdict POST /api/v1/actions/:id/verdict (admin). A verdict on an already decided action is a
// no-op that answers 200 with the current record.
func (h *Handlers) Verdict(c *fiber.Ctx) error {
	acct, ok := middleware.AccountFromContext(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid action id", fiber.StatusBadRequest, nil)
	}
	var req verdictRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}

	var v actionsvc.Verdict
	switch domain.ActionStatus(strings.ToLower(req.Status)) {
	case domain.ActionVerified:
		if req.CO2Impact == nil || req.Tokens == nil {
			return response.Error(c, "co2Impact and tokensMinted are required to verify", fiber.StatusBadRequest, nil)
		}
		v = actionsvc.VerifyVerdict{CO2Impact: *req.CO2Impact, TokenAmount: *req.Tokens}
	case domain.ActionRejected:
		v = actionsvc.RejectVerdict{Reason: req.Reason}
	default:
		return response.Error(c, "status must be verified or rejected", fiber.StatusBadRequest, nil)
	}

	action, err := h.Service.ApplyVerdict(c.UserContext(), acct, id, v)
	if apperr.Is(err, apperr.KindInvariantViolation) {
		current, gerr := h.Service.GetAction(c.UserContext(), id)
		if gerr == nil && current.Status != domain.ActionPending {
			return response.Success(c, "Verdict already applied", current, fiber.Map{"no_op": true})
		}
	}
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Verdict applied", action, nil)
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	return t.UTC(), err
}
