package actions

import (
	"context"
	"errors"
	"math/big"
	"time"

	"ecofusion-backend/internal/domain"
	"ecofusion-backend/internal/infrastructure/audit"
	"ecofusion-backend/internal/pkg/apperr"
	"ecofusion-backend/internal/pkg/fixedpoint"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	defaultLease      = 10 * time.Minute
	defaultClaimLease = 15 * time.Minute
	defaultGrace      = 10 * time.Minute
)

// Ledger is what the lifecycle needs from the chain. Every write is signed by the caller's wallet.
type Ledger interface {
	SubmitAction(ctx context.Context, account, metadataURI string) (string, error)
	ActionCounter(ctx context.Context) (uint64, error)
	GetAction(ctx context.Context, id uint64) (domain.OnChainAction, error)
	ApproveAction(ctx context.Context, account string, id uint64, amount fixedpoint.Amount) (domain.MintReceipt, error)
	RejectAction(ctx context.Context, account string, id uint64) (string, error)
	GrantAllowance(ctx context.Context, account string, asset domain.Asset, value *big.Int) (string, error)
	IsAssociated(ctx context.Context, account string) (bool, error)
	Associate(ctx context.Context, account string) (string, error)
	RedeemAction(ctx context.Context, account string, serial int64) (string, error)
	BlockNumber(ctx context.Context) (uint64, error)
	ScanActionSubmitted(ctx context.Context, from, to uint64) ([]domain.ActionSubmittedEvent, error)
}

type IntentCache interface {
	Put(ctx context.Context, evidenceURI string, intent domain.SubmitIntent) error
	Get(ctx context.Context, evidenceURI string) (domain.SubmitIntent, bool, error)
}

type CursorStore interface {
	Get(ctx context.Context, stream string) (uint64, bool, error)
	Advance(ctx context.Context, stream string, block uint64) error
}

// RoundAccruer receives verified impact. Failures never block a verdict.
type RoundAccruer interface {
	Accrue(ctx context.Context, delta decimal.Decimal) error
}

type Service struct {
	DB         *gorm.DB
	Ledger     Ledger
	Audit      audit.Channel
	Intents    IntentCache
	Cursors    CursorStore
	Rounds     RoundAccruer
	ChannelID  string
	Lease      time.Duration
	ClaimLease time.Duration
	Grace      time.Duration
	StartBlock uint64
	Logger     zerolog.Logger
	Now        func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) leaseFor() time.Duration {
	if s.Lease > 0 {
		return s.Lease
	}
	return defaultLease
}

// claimLeaseFor outlasts a claim's signing and confirmation waits so a second caller cannot
// enter while the first is still redeeming.
func (s *Service) claimLeaseFor() time.Duration {
	if s.ClaimLease > 0 {
		return s.ClaimLease
	}
	return defaultClaimLease
}

func (s *Service) graceFor() time.Duration {
	if s.Grace > 0 {
		return s.Grace
	}
	return defaultGrace
}

func (s *Service) load(ctx context.Context, op string, id uuid.UUID) (*domain.Action, error) {
	var a domain.Action
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound(op, "action not found")
	}
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	return &a, nil
}

// acquireLease marks the row as in flight with a guarded write. Only the winner reaches the ledger.
func (s *Service) acquireLease(ctx context.Context, op string, id uuid.UUID, status domain.ActionStatus, lease time.Duration) (string, error) {
	token := uuid.NewString()
	now := s.now()
	res := s.DB.WithContext(ctx).Model(&domain.Action{}).
		Where("id = ? AND status = ? AND (lease_token IS NULL OR lease_expires_at < ?)", id, status, now).
		Updates(map[string]interface{}{
			"lease_token":      token,
			"lease_expires_at": now.Add(lease),
		})
	if res.Error != nil {
		return "", apperr.Internal(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return "", apperr.Invariant(op, "action is no longer "+string(status)+" or is already being processed")
	}
	return token, nil
}

// releaseLease frees the row after a failed ledger step. It runs detached from the request context.
func (s *Service) releaseLease(id uuid.UUID, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.DB.WithContext(ctx).Model(&domain.Action{}).
		Where("id = ? AND lease_token = ?", id, token).
		Updates(map[string]interface{}{"lease_token": nil, "lease_expires_at": nil}).Error
	if err != nil {
		s.Logger.Warn().Err(err).Str("action_id", id.String()).Msg("failed to release action lease")
	}
}

// transition is the single guarded write behind every status edge.
func (s *Service) transition(ctx context.Context, id uuid.UUID, from domain.ActionStatus, token string, fields map[string]interface{}) (bool, error) {
	q := s.DB.WithContext(ctx).Model(&domain.Action{}).Where("id = ? AND status = ?", id, from)
	if token != "" {
		q = q.Where("lease_token = ?", token)
	} else {
		q = q.Where("(lease_token IS NULL OR lease_expires_at < ?)", s.now())
	}
	fields["lease_token"] = nil
	fields["lease_expires_at"] = nil
	res := q.Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
