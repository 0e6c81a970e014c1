package listings

import (
	"context"
	"strings"

	"ecofusion-backend/internal/domain"
	"ecofusion-backend/internal/pkg/apperr"
	"ecofusion-backend/internal/pkg/fixedpoint"
	"ecofusion-backend/internal/pkg/metrics"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	listedStream = "tokens_listed"
	fillsStream  = "listing_filled"
)

type ReconcileReport struct {
	Restored int `json:"restored"`
	Fills    int `json:"fills"`
	Skipped  int `json:"skipped"`
}

func (r ReconcileReport) Total() int { return r.Restored + r.Fills }

// Reconcile restores listings the mirror missed and replays fills. Listings go first so a fill
// for a restored listing finds its row.
func (s *Service) Reconcile(ctx context.Context) (report ReconcileReport, err error) {
	const op = "listings.reconcile"
	defer func() { metrics.ObserveLifecycle(op, err) }()

	head, err := s.Ledger.BlockNumber(ctx)
	if err != nil {
		return report, err
	}

	err = s.walk(ctx, op, listedStream, head, func(from, to uint64) error {
		events, err := s.Ledger.ScanListed(ctx, from, to)
		if err != nil {
			return err
		}
		for _, ev := range events {
			restored, err := s.restoreListing(ctx, ev)
			if err != nil {
				return apperr.Internal(op, err)
			}
			if restored {
				report.Restored++
			}
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	err = s.walk(ctx, op, fillsStream, head, func(from, to uint64) error {
		fills, err := s.Ledger.ScanFills(ctx, from, to)
		if err != nil {
			return err
		}
		for _, ev := range fills {
			_, dup, err := s.HandleFill(ctx, ev)
			if unappliable(err) {
				// Rescanning cannot change the outcome; holding the cursor would block every later fill.
				s.Logger.Warn().Err(err).Str("tx_ref", ev.TxRef).Uint64("ledger_listing_id", ev.LedgerListingID).
					Msg("fill skipped by reconciliation")
				report.Skipped++
				continue
			}
			if err != nil {
				return err
			}
			if !dup {
				report.Fills++
			}
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	if report.Total() > 0 || report.Skipped > 0 {
		s.Logger.Info().Int("restored", report.Restored).Int("fills", report.Fills).Int("skipped", report.Skipped).
			Msg("listings reconciled")
	}
	return report, nil
}

// unappliable reports a per-event outcome that the same event will always produce: the mirror
// disagrees with it, or its listing was never listed within the scanned range.
func unappliable(err error) bool {
	return apperr.Is(err, apperr.KindInvariantViolation) || apperr.Is(err, apperr.KindNotFound) ||
		apperr.Is(err, apperr.KindValidation)
}

// walk runs fn over (cursor, head] and advances the cursor only when fn succeeds.
func (s *Service) walk(ctx context.Context, op, stream string, head uint64, fn func(from, to uint64) error) error {
	from := s.StartBlock
	if s.Cursors != nil {
		cur, ok, err := s.Cursors.Get(ctx, stream)
		if err != nil {
			return apperr.Internal(op, err)
		}
		if ok {
			from = cur + 1
		}
	}
	if from > head {
		return nil
	}
	if err := fn(from, head); err != nil {
		return err
	}
	if s.Cursors == nil {
		return nil
	}
	if err := s.Cursors.Advance(ctx, stream, head); err != nil {
		return apperr.Internal(op, err)
	}
	return nil
}

func (s *Service) restoreListing(ctx context.Context, ev domain.ListedEvent) (bool, error) {
	price, err := fixedpoint.Quo(ev.TotalPrice, ev.Amount)
	if err != nil {
		// Totals that do not divide evenly keep the listing; the per-token price is informational.
		price = fixedpoint.Zero()
	}
	ledgerID := ev.LedgerListingID
	status := domain.ListingListed
	if !ev.ExpiresAt.IsZero() && ev.ExpiresAt.Before(s.now()) {
		status = domain.ListingExpired
	}
	listing := &domain.Listing{
		Seller:          strings.ToLower(ev.Seller),
		Tokens:          ev.Amount,
		TokensRemaining: ev.Amount,
		PricePerToken:   price,
		TotalPrice:      ev.TotalPrice,
		ExpiresAt:       ev.ExpiresAt.UTC(),
		LedgerListingID: &ledgerID,
		ListTxRef:       ev.TxRef,
		Status:          status,
	}

	restored := false
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "ledger_listing_id"}}, DoNothing: true}).
			Create(listing)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		restored = true
		return appendEvent(tx, listing.ListingID, domain.ListingEventListed, ev.TxRef, map[string]interface{}{
			"tokens":      listing.Tokens,
			"total_price": listing.TotalPrice,
			"expires_at":  listing.ExpiresAt,
			"source":      "reconcile",
		})
	})
	return restored, err
}
