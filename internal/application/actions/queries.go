package actions

import (
	"context"

	"ecofusion-backend/internal/domain"
	"ecofusion-backend/internal/pkg/apperr"

	"github.com/google/uuid"
)

func (s *Service) GetAction(ctx context.Context, id uuid.UUID) (*domain.Action, error) {
	return s.load(ctx, "actions.get", id)
}

// ListActionsForOwner returns the owner's actions, newest first.
func (s *Service) ListActionsForOwner(ctx context.Context, owner string) ([]domain.Action, error) {
	var rows []domain.Action
	err := s.DB.WithContext(ctx).Where("LOWER(owner) = LOWER(?)", owner).Order(`"createdAt" DESC`).Find(&rows).Error
	if err != nil {
		return nil, apperr.Internal("actions.list_for_owner", err)
	}
	return rows, nil
}

// ListPendingActions is the review queue, oldest first.
func (s *Service) ListPendingActions(ctx context.Context) ([]domain.Action, error) {
	var rows []domain.Action
	err := s.DB.WithContext(ctx).Where("status = ?", domain.ActionPending).Order(`"createdAt" ASC`).Find(&rows).Error
	if err != nil {
		return nil, apperr.Internal("actions.list_pending", err)
	}
	return rows, nil
}
