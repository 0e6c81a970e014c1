package actions

import (
	"context"

	"ecofusion-backend/internal/domain"
	"ecofusion-backend/internal/pkg/apperr"
	"ecofusion-backend/internal/pkg/metrics"

	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

const submittedStream = "action_submitted"

type ReconcileReport struct {
	Restored int `json:"restored"`
	Verified int `json:"verified"`
	Rejected int `json:"rejected"`
	Claimed  int `json:"claimed"`
}

func (r ReconcileReport) Total() int {
	return r.Restored + r.Verified + r.Rejected + r.Claimed
}

// Reconcile brings the mirror in line with the ledger: it restores submissions the mirror never
// recorded, adopts verdicts and redemptions that landed on-chain, and never moves a row backwards.
// Running it twice changes nothing the second time.
func (s *Service) Reconcile(ctx context.Context) (report ReconcileReport, err error) {
	const op = "actions.reconcile"
	defer func() { metrics.ObserveLifecycle(op, err) }()

	if err := s.restoreSubmitted(ctx, op, &report); err != nil {
		return report, err
	}
	if err := s.convergePending(ctx, op, &report); err != nil {
		return report, err
	}
	if err := s.convergeVerified(ctx, op, &report); err != nil {
		return report, err
	}
	if report.Total() > 0 {
		s.Logger.Info().Int("restored", report.Restored).Int("verified", report.Verified).
			Int("rejected", report.Rejected).Int("claimed", report.Claimed).Msg("actions reconciled")
	}
	return report, nil
}

func (s *Service) restoreSubmitted(ctx context.Context, op string, report *ReconcileReport) error {
	head, err := s.Ledger.BlockNumber(ctx)
	if err != nil {
		return err
	}
	from := s.StartBlock
	if s.Cursors != nil {
		cur, ok, err := s.Cursors.Get(ctx, submittedStream)
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

	events, err := s.Ledger.ScanActionSubmitted(ctx, from, head)
	if err != nil {
		return err
	}
	for _, ev := range events {
		restored, err := s.restore(ctx, ev)
		if err != nil {
			return apperr.Internal(op, err)
		}
		if restored {
			report.Restored++
		}
	}
	if s.Cursors != nil {
		if err := s.Cursors.Advance(ctx, submittedStream, head); err != nil {
			return apperr.Internal(op, err)
		}
	}
	return nil
}

func (s *Service) restore(ctx context.Context, ev domain.ActionSubmittedEvent) (bool, error) {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&domain.Action{}).Where("ledger_action_id = ?", ev.LedgerActionID).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	intent := domain.SubmitIntent{ActionType: domain.ActionTypeUnknown, Description: "restored from ledger"}
	if s.Intents != nil {
		cached, ok, err := s.Intents.Get(ctx, ev.MetadataURI)
		if err != nil {
			s.Logger.Warn().Err(err).Str("evidence_uri", ev.MetadataURI).Msg("could not read cached intent")
		}
		if ok {
			intent = cached
		}
	}

	id := ev.LedgerActionID
	row := domain.Action{
		LedgerActionID:  &id,
		Owner:           ev.Owner,
		UserID:          intent.UserID,
		ActionType:      intent.ActionType,
		Description:     intent.Description,
		Location:        intent.Location,
		ActionDate:      intent.ActionDate,
		EvidenceURI:     ev.MetadataURI,
		Status:          domain.ActionPending,
		ReviewChannelID: s.ChannelID,
		SubmitTxRef:     ev.TxRef,
	}
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "ledger_action_id"}}, DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		s.Logger.Info().Uint64("ledger_action_id", id).Str("tx_ref", ev.TxRef).Msg("restored action from ledger event")
	}
	return res.RowsAffected == 1, nil
}

func (s *Service) convergePending(ctx context.Context, op string, report *ReconcileReport) error {
	var rows []domain.Action
	cutoff := s.now().Add(-s.graceFor())
	err := s.DB.WithContext(ctx).
		Where(`status = ? AND ledger_action_id IS NOT NULL AND "createdAt" < ?`, domain.ActionPending, cutoff).
		Find(&rows).Error
	if err != nil {
		return apperr.Internal(op, err)
	}

	for _, row := range rows {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		onChain, err := s.Ledger.GetAction(ctx, *row.LedgerActionID)
		if err != nil {
			s.Logger.Warn().Err(err).Uint64("ledger_action_id", *row.LedgerActionID).Msg("could not read ledger action")
			continue
		}
		switch onChain.State {
		case domain.LedgerActionVerified, domain.LedgerActionRedeemed:
			impact, txRef, ok := s.lastImpact(ctx, row)
			if !ok {
				s.Logger.Warn().Str("action_id", row.ID.String()).Msg("verified on ledger but no audit record holds its co2 impact")
				continue
			}
			fields := map[string]interface{}{
				"status":        domain.ActionVerified,
				"co2_impact":    impact,
				"tokens_minted": onChain.TokenAmount,
				"serial_number": onChain.Serial,
			}
			if txRef != "" {
				fields["verdict_tx_ref"] = txRef
			}
			moved, err := s.transition(ctx, row.ID, domain.ActionPending, "", fields)
			if err != nil {
				return apperr.Internal(op, err)
			}
			if !moved {
				continue
			}
			report.Verified++
			if onChain.State == domain.LedgerActionRedeemed {
				if err := s.markClaimed(ctx, op, row, report); err != nil {
					return err
				}
			}
		case domain.LedgerActionRejected:
			moved, err := s.transition(ctx, row.ID, domain.ActionPending, "", map[string]interface{}{"status": domain.ActionRejected})
			if err != nil {
				return apperr.Internal(op, err)
			}
			if moved {
				report.Rejected++
			}
		}
	}
	return nil
}

func (s *Service) convergeVerified(ctx context.Context, op string, report *ReconcileReport) error {
	var rows []domain.Action
	if err := s.DB.WithContext(ctx).Where("status = ? AND ledger_action_id IS NOT NULL", domain.ActionVerified).Find(&rows).Error; err != nil {
		return apperr.Internal(op, err)
	}
	for _, row := range rows {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		onChain, err := s.Ledger.GetAction(ctx, *row.LedgerActionID)
		if err != nil {
			s.Logger.Warn().Err(err).Uint64("ledger_action_id", *row.LedgerActionID).Msg("could not read ledger action")
			continue
		}
		if onChain.State == domain.LedgerActionRedeemed {
			if err := s.markClaimed(ctx, op, row, report); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) markClaimed(ctx context.Context, op string, row domain.Action, report *ReconcileReport) error {
	moved, err := s.transition(ctx, row.ID, domain.ActionVerified, "", map[string]interface{}{"status": domain.ActionClaimed})
	if err != nil {
		return apperr.Internal(op, err)
	}
	if moved {
		report.Claimed++
	}
	return nil
}

// lastImpact reads the co2 impact of the latest verified audit record for row.
func (s *Service) lastImpact(ctx context.Context, row domain.Action) (decimal.Decimal, string, bool) {
	channel := row.ReviewChannelID
	if channel == "" {
		channel = s.ChannelID
	}
	rec, err := s.Audit.Latest(ctx, channel, *row.LedgerActionID)
	if err != nil || rec.Kind != domain.AuditVerdictVerified {
		return decimal.Zero, "", false
	}
	impact, err := decimal.NewFromString(rec.Verdict.CO2Impact)
	if err != nil || !impact.IsPositive() {
		return decimal.Zero, "", false
	}
	return impact, rec.Verdict.TxRef, true
}
