package listings

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"time"

	"ecofusion-backend/internal/domain"
	"ecofusion-backend/internal/pkg/apperr"
	"ecofusion-backend/internal/pkg/fixedpoint"
	"ecofusion-backend/internal/pkg/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Ledger is the marketplace surface of the chain client.
type Ledger interface {
	BalanceOf(ctx context.Context, account string) (fixedpoint.Amount, error)
	GrantAllowance(ctx context.Context, account string, asset domain.Asset, value *big.Int) (string, error)
	ListTokens(ctx context.Context, account string, amount, totalPrice fixedpoint.Amount, expiresIn time.Duration) (domain.ListingReceipt, error)
	CancelListing(ctx context.Context, account string, ledgerListingID uint64) (string, error)
	BlockNumber(ctx context.Context) (uint64, error)
	ScanListed(ctx context.Context, from, to uint64) ([]domain.ListedEvent, error)
	ScanFills(ctx context.Context, from, to uint64) ([]domain.FillEvent, error)
}

type CursorStore interface {
	Get(ctx context.Context, stream string) (uint64, bool, error)
	Advance(ctx context.Context, stream string, block uint64) error
}

type Service struct {
	DB         *gorm.DB
	Ledger     Ledger
	Cursors    CursorStore
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

type CreateListingInput struct {
	Tokens        fixedpoint.Amount
	PricePerToken fixedpoint.Amount
	TotalPrice    *fixedpoint.Amount
	ExpiresAt     time.Time
	CO2Offset     *decimal.Decimal
}

func (in CreateListingInput) total(op string, now time.Time) (fixedpoint.Amount, error) {
	if !in.Tokens.IsPositive() {
		return fixedpoint.Zero(), apperr.Validation(op, "tokens must be greater than zero")
	}
	if !in.PricePerToken.IsPositive() {
		return fixedpoint.Zero(), apperr.Validation(op, "price per token must be greater than zero")
	}
	if !in.ExpiresAt.After(now) {
		return fixedpoint.Zero(), apperr.Validation(op, "expiresAt must be in the future")
	}
	if in.CO2Offset != nil && in.CO2Offset.IsNegative() {
		return fixedpoint.Zero(), apperr.Validation(op, "co2 offset cannot be negative")
	}
	total, err := fixedpoint.Mul(in.Tokens, in.PricePerToken)
	if err != nil {
		return fixedpoint.Zero(), apperr.Validation(op, err.Error())
	}
	if in.TotalPrice != nil && !in.TotalPrice.Equal(total) {
		return fixedpoint.Zero(), apperr.Validation(op, "total price does not equal tokens times price per token").
			WithContext("expected", total.String())
	}
	return total, nil
}

// CreateListing escrows nothing locally: the seller's wallet approves the marketplace and lists on
// the ledger, and only then is the mirror row written.
func (s *Service) CreateListing(ctx context.Context, acct domain.Account, in CreateListingInput) (listing *domain.Listing, err error) {
	const op = "listings.create"
	defer func() { metrics.ObserveLifecycle(op, err) }()

	if acct.Address == "" {
		return nil, apperr.Forbidden(op, "a wallet account is required to list tokens")
	}
	now := s.now()
	total, err := in.total(op, now)
	if err != nil {
		return nil, err
	}

	balance, err := s.Ledger.BalanceOf(ctx, acct.Address)
	if err != nil {
		return nil, err
	}
	if in.Tokens.GT(balance) {
		return nil, apperr.Validation(op, "insufficient token balance").
			WithContext("balance", balance.String()).
			WithContext("requested", in.Tokens.String())
	}

	if _, err := s.Ledger.GrantAllowance(ctx, acct.Address, domain.AssetCarbonCredit, in.Tokens.BigInt()); err != nil {
		return nil, err
	}
	receipt, err := s.Ledger.ListTokens(ctx, acct.Address, in.Tokens, total, in.ExpiresAt.Sub(now))
	if err != nil {
		return nil, err
	}

	ledgerID := receipt.LedgerListingID
	listing = &domain.Listing{
		Seller:          strings.ToLower(acct.Address),
		Tokens:          in.Tokens,
		TokensRemaining: in.Tokens,
		PricePerToken:   in.PricePerToken,
		TotalPrice:      total,
		CO2Offset:       in.CO2Offset,
		ExpiresAt:       in.ExpiresAt.UTC(),
		LedgerListingID: &ledgerID,
		ListTxRef:       receipt.TxRef,
		Status:          domain.ListingListed,
	}
	if acct.UserID != uuid.Nil {
		uid := acct.UserID
		listing.SellerUserID = &uid
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(listing).Error; err != nil {
			return err
		}
		return appendEvent(tx, listing.ListingID, domain.ListingEventListed, receipt.TxRef, map[string]interface{}{
			"tokens":          listing.Tokens,
			"price_per_token": listing.PricePerToken,
			"total_price":     listing.TotalPrice,
			"expires_at":      listing.ExpiresAt,
		})
	})
	if err != nil {
		s.Logger.Error().Err(err).Str("tx_ref", receipt.TxRef).Uint64("ledger_listing_id", ledgerID).
			Msg("listing is on the ledger but the mirror write failed")
		return nil, apperr.MirrorWrite(op, receipt.TxRef, err)
	}

	s.Logger.Info().Str("listing_id", listing.ListingID.String()).Uint64("ledger_listing_id", ledgerID).
		Str("seller", listing.Seller).Msg("listing created")
	return listing, nil
}

// fillableStatuses are the mirror states a ledger fill may land on. Expired and cancelled are
// local views; a fill mined before either still settled on the ledger.
var fillableStatuses = []domain.ListingStatus{domain.ListingListed, domain.ListingExpired, domain.ListingCancelled}

// HandleFill records one ListingFilled event. Replays of the same tx_ref return the stored
// transaction and change nothing.
func (s *Service) HandleFill(ctx context.Context, ev domain.FillEvent) (txn *domain.Transaction, duplicate bool, err error) {
	const op = "listings.handle_fill"
	defer func() { metrics.ObserveLifecycle(op, err) }()

	if ev.TxRef == "" {
		return nil, false, apperr.Validation(op, "fill event has no tx_ref")
	}
	if !ev.Amount.IsPositive() {
		return nil, false, apperr.Validation(op, "fill amount must be greater than zero")
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.Transaction
		err := tx.Where("tx_ref = ?", ev.TxRef).First(&existing).Error
		if err == nil {
			txn, duplicate = &existing, true
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var listing domain.Listing
		err = tx.Where("ledger_listing_id = ?", ev.LedgerListingID).First(&listing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound(op, "no listing for ledger listing id").
				WithContext("ledger_listing_id", ev.LedgerListingID)
		}
		if err != nil {
			return err
		}
		if ev.Seller != "" && !strings.EqualFold(ev.Seller, listing.Seller) {
			return apperr.Invariant(op, "fill seller does not match listing seller").WithTxRef(ev.TxRef)
		}

		remaining, err := listing.TokensRemaining.Sub(ev.Amount)
		if err != nil {
			return apperr.Invariant(op, "fill exceeds tokens remaining").WithTxRef(ev.TxRef).
				WithContext("tokens_remaining", listing.TokensRemaining.String())
		}
		status := listing.Status
		eventType := domain.ListingEventPartiallyFilled
		if remaining.IsZero() {
			status = domain.ListingFilled
			eventType = domain.ListingEventFilled
		}

		res := tx.Model(&domain.Listing{}).
			Where("listing_id = ? AND status IN ? AND tokens_remaining = ?",
				listing.ListingID, fillableStatuses, listing.TokensRemaining).
			Updates(map[string]interface{}{
				"tokens_remaining": remaining,
				"status":           status,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Invariant(op, "listing changed while the fill was applied").WithTxRef(ev.TxRef).
				WithContext("status", string(listing.Status))
		}

		txn = &domain.Transaction{
			TxRef:           ev.TxRef,
			ListingID:       listing.ListingID,
			LedgerListingID: ev.LedgerListingID,
			Buyer:           strings.ToLower(ev.Buyer),
			Seller:          listing.Seller,
			Amount:          ev.Amount,
			TotalPrice:      ev.TotalPrice,
			BlockNumber:     ev.BlockNumber,
		}
		if err := tx.Create(txn).Error; err != nil {
			return err
		}
		return appendEvent(tx, listing.ListingID, eventType, ev.TxRef, map[string]interface{}{
			"buyer":            txn.Buyer,
			"amount":           ev.Amount,
			"total_price":      ev.TotalPrice,
			"tokens_remaining": remaining,
		})
	})
	if err != nil {
		if isUniqueViolation(err) {
			var existing domain.Transaction
			if ferr := s.DB.WithContext(ctx).Where("tx_ref = ?", ev.TxRef).First(&existing).Error; ferr == nil {
				return &existing, true, nil
			}
		}
		if _, ok := apperr.As(err); ok {
			return nil, false, err
		}
		return nil, false, apperr.Internal(op, err)
	}

	if duplicate {
		s.Logger.Debug().Str("tx_ref", ev.TxRef).Msg("fill already recorded")
	} else {
		s.Logger.Info().Str("tx_ref", ev.TxRef).Uint64("ledger_listing_id", ev.LedgerListingID).
			Str("amount", ev.Amount.String()).Msg("fill recorded")
	}
	return txn, duplicate, nil
}

// ExpireSweep flags listed rows whose expiry passed. The ledger enforces expiry on its own; this
// only keeps the mirror's view tidy.
func (s *Service) ExpireSweep(ctx context.Context, now time.Time) (int, error) {
	const op = "listings.expire_sweep"
	var due []domain.Listing
	if err := s.DB.WithContext(ctx).
		Where("status = ? AND expires_at < ?", domain.ListingListed, now.UTC()).
		Find(&due).Error; err != nil {
		return 0, apperr.Internal(op, err)
	}

	swept := 0
	for _, l := range due {
		err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&domain.Listing{}).
				Where("listing_id = ? AND status = ?", l.ListingID, domain.ListingListed).
				Update("status", domain.ListingExpired)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return nil
			}
			swept++
			return appendEvent(tx, l.ListingID, domain.ListingEventExpired, "", map[string]interface{}{
				"expires_at":       l.ExpiresAt,
				"tokens_remaining": l.TokensRemaining,
			})
		})
		if err != nil {
			return swept, apperr.Internal(op, err)
		}
	}
	return swept, nil
}

// CancelListing withdraws an open listing. Only its seller may do so.
func (s *Service) CancelListing(ctx context.Context, acct domain.Account, listingID uuid.UUID) (listing *domain.Listing, err error) {
	const op = "listings.cancel"
	defer func() { metrics.ObserveLifecycle(op, err) }()

	listing, err = s.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if !acct.Owns(listing.Seller) {
		return nil, apperr.Forbidden(op, "only the seller can cancel a listing")
	}
	if listing.Status != domain.ListingListed {
		return nil, apperr.Invariant(op, "listing is not open").WithContext("status", string(listing.Status))
	}
	if listing.LedgerListingID == nil {
		return nil, apperr.Invariant(op, "listing has no ledger id")
	}

	txRef, err := s.Ledger.CancelListing(ctx, acct.Address, *listing.LedgerListingID)
	if err != nil {
		return nil, err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Listing{}).
			Where("listing_id = ? AND status = ?", listing.ListingID, domain.ListingListed).
			Update("status", domain.ListingCancelled)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.New("listing left listed state before cancellation was recorded")
		}
		return appendEvent(tx, listing.ListingID, domain.ListingEventCancelled, txRef, map[string]interface{}{
			"tokens_remaining": listing.TokensRemaining,
		})
	})
	if err != nil {
		return nil, apperr.MirrorWrite(op, txRef, err)
	}
	return s.GetListing(ctx, listingID)
}

func (s *Service) GetListing(ctx context.Context, id uuid.UUID) (*domain.Listing, error) {
	var l domain.Listing
	err := s.DB.WithContext(ctx).Where("listing_id = ?", id).First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("listings.get", "listing not found")
	}
	if err != nil {
		return nil, apperr.Internal("listings.get", err)
	}
	return &l, nil
}

// ListActiveListings returns open listings that have not expired yet, cheapest first.
func (s *Service) ListActiveListings(ctx context.Context) ([]domain.Listing, error) {
	var out []domain.Listing
	err := s.DB.WithContext(ctx).
		Where("status = ? AND expires_at > ?", domain.ListingListed, s.now()).
		Order("price_per_token ASC").Order(`"createdAt" ASC`).
		Find(&out).Error
	if err != nil {
		return nil, apperr.Internal("listings.list_active", err)
	}
	return out, nil
}

func (s *Service) ListSellerListings(ctx context.Context, seller string) ([]domain.Listing, error) {
	var out []domain.Listing
	err := s.DB.WithContext(ctx).
		Where("LOWER(seller) = LOWER(?)", seller).
		Order(`"createdAt" DESC`).
		Find(&out).Error
	if err != nil {
		return nil, apperr.Internal("listings.list_seller", err)
	}
	return out, nil
}

// Events returns a listing's history, oldest first.
func (s *Service) Events(ctx context.Context, listingID uuid.UUID) ([]domain.ListingEvent, error) {
	var out []domain.ListingEvent
	err := s.DB.WithContext(ctx).Where("listing_id = ?", listingID).
		Order(`"createdAt" ASC`).Find(&out).Error
	if err != nil {
		return nil, apperr.Internal("listings.events", err)
	}
	return out, nil
}

func appendEvent(tx *gorm.DB, listingID uuid.UUID, eventType, txRef string, data map[string]interface{}) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	ev := &domain.ListingEvent{
		ListingID: listingID,
		EventType: eventType,
		EventData: datatypes.JSON(b),
	}
	if txRef != "" {
		ev.TxRef = &txRef
	}
	return tx.Create(ev).Error
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
