package transactions

import (
	"context"
	"errors"
	"strings"

	"ecofusion-backend/internal/domain"
	"ecofusion-backend/internal/pkg/apperr"

	"gorm.io/gorm"
)

type Service struct {
	DB *gorm.DB
}

// View is a settled fill from one account's point of view.
type View struct {
	domain.Transaction
	Side string `json:"side"` // "buy" or "sell"
}

// ListForAccount returns fills where the account bought or sold, newest first.
func (s *Service) ListForAccount(ctx context.Context, account string) ([]View, error) {
	const op = "transactions.list"
	if account == "" {
		return nil, apperr.Forbidden(op, "wallet account missing from session")
	}

	var txs []domain.Transaction
	if err := s.DB.WithContext(ctx).
		Where("LOWER(buyer) = LOWER(?) OR LOWER(seller) = LOWER(?)", account, account).
		Order(`"createdAt" DESC`).
		Find(&txs).Error; err != nil {
		return nil, apperr.Internal(op, err)
	}

	out := make([]View, 0, len(txs))
	for _, tx := range txs {
		side := "sell"
		if strings.EqualFold(tx.Buyer, account) {
			side = "buy"
		}
		out = append(out, View{Transaction: tx, Side: side})
	}
	return out, nil
}

func (s *Service) GetByTxRef(ctx context.Context, ref string) (*domain.Transaction, error) {
	const op = "transactions.get"
	var tx domain.Transaction
	err := s.DB.WithContext(ctx).Where("tx_ref = ?", ref).First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound(op, "transaction not found")
	}
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	return &tx, nil
}
