package rounds

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"ecofusion-backend/internal/domain"
	"ecofusion-backend/internal/pkg/apperr"
	"ecofusion-backend/internal/pkg/metrics"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service tracks VerraRounds, the reporting aggregate verified impact accrues to.
type Service struct {
	DB     *gorm.DB
	Logger zerolog.Logger
}

type CreateRoundInput struct {
	TargetAmount decimal.Decimal
	StartDate    *time.Time
	EndDate      *time.Time
	TopicID      *string
}

// CreateRound adds the next round (max round_number + 1) in upcoming state.
func (s *Service) CreateRound(ctx context.Context, in CreateRoundInput) (round *domain.VerraRound, err error) {
	const op = "rounds.create"
	defer func() { metrics.ObserveLifecycle(op, err) }()

	if !in.TargetAmount.IsPositive() {
		return nil, apperr.Validation(op, "target amount must be positive")
	}
	if in.StartDate != nil && in.EndDate != nil && !in.EndDate.After(*in.StartDate) {
		return nil, apperr.Validation(op, "end date must be after start date")
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var max sql.NullInt64
		if err := tx.Model(&domain.VerraRound{}).Select("MAX(round_number)").Row().Scan(&max); err != nil {
			return err
		}
		next := int(max.Int64) + 1
		round = &domain.VerraRound{
			RoundNumber:    next,
			TargetAmount:   in.TargetAmount,
			AchievedAmount: decimal.Zero,
			Status:         domain.RoundUpcoming,
			StartDate:      in.StartDate,
			EndDate:        in.EndDate,
			TopicID:        in.TopicID,
		}
		return tx.Create(round).Error
	})
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	return round, nil
}

// ActivateRound moves an upcoming round to active while no other round is active.
func (s *Service) ActivateRound(ctx context.Context, number int) (round *domain.VerraRound, err error) {
	const op = "rounds.activate"
	defer func() { metrics.ObserveLifecycle(op, err) }()

	if _, err := s.GetRound(ctx, number); err != nil {
		return nil, err
	}
	res := s.DB.WithContext(ctx).Model(&domain.VerraRound{}).
		Where("round_number = ? AND status = ?", number, domain.RoundUpcoming).
		Where("NOT EXISTS (SELECT 1 FROM \"VerraRounds\" AS v WHERE v.status = ?)", domain.RoundActive).
		Update("status", domain.RoundActive)
	if res.Error != nil {
		return nil, apperr.Internal(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.Invariant(op, "round is not upcoming or another round is active")
	}
	return s.GetRound(ctx, number)
}

// RecordProgress adds delta to an active round in a single increment.
func (s *Service) RecordProgress(ctx context.Context, number int, delta decimal.Decimal) (round *domain.VerraRound, err error) {
	const op = "rounds.record_progress"
	defer func() { metrics.ObserveLifecycle(op, err) }()

	if !delta.IsPositive() {
		return nil, apperr.Validation(op, "progress must be positive")
	}
	if _, err := s.GetRound(ctx, number); err != nil {
		return nil, err
	}
	res := s.DB.WithContext(ctx).Model(&domain.VerraRound{}).
		Where("round_number = ? AND status = ?", number, domain.RoundActive).
		Update("achieved_amount", gorm.Expr("achieved_amount + ?", delta))
	if res.Error != nil {
		return nil, apperr.Internal(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.Invariant(op, "round "+strconv.Itoa(number)+" is not active")
	}
	return s.GetRound(ctx, number)
}

// Accrue adds verified impact to the active round, if there is one.
func (s *Service) Accrue(ctx context.Context, delta decimal.Decimal) error {
	if !delta.IsPositive() {
		return nil
	}
	res := s.DB.WithContext(ctx).Model(&domain.VerraRound{}).
		Where("status = ?", domain.RoundActive).
		Update("achieved_amount", gorm.Expr("achieved_amount + ?", delta))
	if res.Error != nil {
		return apperr.Internal("rounds.accrue", res.Error)
	}
	if res.RowsAffected == 0 {
		s.Logger.Debug().Str("delta", delta.String()).Msg("no active round to accrue impact to")
	}
	return nil
}

// CertifyRound sets is_certified once the target is reached. It can only happen once.
func (s *Service) CertifyRound(ctx context.Context, number int) (round *domain.VerraRound, err error) {
	const op = "rounds.certify"
	defer func() { metrics.ObserveLifecycle(op, err) }()

	if _, err := s.GetRound(ctx, number); err != nil {
		return nil, err
	}
	res := s.DB.WithContext(ctx).Model(&domain.VerraRound{}).
		Where("round_number = ? AND is_certified = ? AND achieved_amount >= target_amount", number, false).
		Update("is_certified", true)
	if res.Error != nil {
		return nil, apperr.Internal(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.Invariant(op, "round is already certified or below its target")
	}
	s.Logger.Info().Int("round_number", number).Msg("round certified")
	return s.GetRound(ctx, number)
}

// CompleteRound closes an active round.
func (s *Service) CompleteRound(ctx context.Context, number int) (round *domain.VerraRound, err error) {
	const op = "rounds.complete"
	defer func() { metrics.ObserveLifecycle(op, err) }()

	if _, err := s.GetRound(ctx, number); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	res := s.DB.WithContext(ctx).Model(&domain.VerraRound{}).
		Where("round_number = ? AND status = ?", number, domain.RoundActive).
		Updates(map[string]interface{}{
			"status":   domain.RoundCompleted,
			"end_date": gorm.Expr("COALESCE(end_date, ?)", now),
		})
	if res.Error != nil {
		return nil, apperr.Internal(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.Invariant(op, "round is not active")
	}
	return s.GetRound(ctx, number)
}

func (s *Service) ListRounds(ctx context.Context) ([]domain.VerraRound, error) {
	var rounds []domain.VerraRound
	if err := s.DB.WithContext(ctx).Order(clause.OrderByColumn{Column: clause.Column{Name: "round_number"}}).Find(&rounds).Error; err != nil {
		return nil, apperr.Internal("rounds.list", err)
	}
	return rounds, nil
}

func (s *Service) GetRound(ctx context.Context, number int) (*domain.VerraRound, error) {
	var r domain.VerraRound
	err := s.DB.WithContext(ctx).Where("round_number = ?", number).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("rounds.get", "round not found")
	}
	if err != nil {
		return nil, apperr.Internal("rounds.get", err)
	}
	return &r, nil
}
