package actions

import (
	"context"

	"ecofusion-backend/internal/domain"
	"ecofusion-backend/internal/infrastructure/audit"
	"ecofusion-backend/internal/pkg/apperr"
	"ecofusion-backend/internal/pkg/fixedpoint"
	"ecofusion-backend/internal/pkg/metrics"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Verdict is either VerifyVerdict or RejectVerdict.
type Verdict interface {
	verdict()
}

type VerifyVerdict struct {
	CO2Impact   decimal.Decimal
	TokenAmount fixedpoint.Amount
}

type RejectVerdict struct {
	Reason string
}

func (VerifyVerdict) verdict() {}
func (RejectVerdict) verdict() {}

// ApplyVerdict decides a pending action. The ledger is called at most once per decision: a lease
// serialises racing reviewers and a verdict already recorded on-chain is adopted instead of resent.
func (s *Service) ApplyVerdict(ctx context.Context, acct domain.Account, id uuid.UUID, v Verdict) (action *domain.Action, err error) {
	const op = "actions.apply_verdict"
	defer func() { metrics.ObserveLifecycle(op, err) }()

	if !acct.IsAdmin() {
		return nil, apperr.Forbidden(op, "only reviewers can apply verdicts")
	}
	switch vv := v.(type) {
	case VerifyVerdict:
		if !vv.CO2Impact.IsPositive() {
			return nil, apperr.Validation(op, "co2 impact must be positive")
		}
		if !vv.TokenAmount.IsPositive() {
			return nil, apperr.Validation(op, "token amount must be positive")
		}
		if _, ok := vv.TokenAmount.Int64Units(); !ok {
			return nil, apperr.Validation(op, "token amount is too large")
		}
	case RejectVerdict:
	default:
		return nil, apperr.Validation(op, "verdict must be verify or reject")
	}

	row, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	variant, err := row.Variant()
	if err != nil {
		return nil, err
	}
	pending, ok := variant.(domain.PendingAction)
	if !ok {
		return nil, apperr.Invariant(op, "action is already "+string(row.Status)).WithContext("status", row.Status)
	}

	token, err := s.acquireLease(ctx, op, id, domain.ActionPending, s.leaseFor())
	if err != nil {
		return nil, err
	}

	onChain, err := s.Ledger.GetAction(ctx, pending.LedgerActionID)
	if err != nil {
		s.releaseLease(id, token)
		return nil, err
	}

	switch vv := v.(type) {
	case VerifyVerdict:
		err = s.verify(ctx, op, acct, pending, onChain, vv, token)
	case RejectVerdict:
		err = s.reject(ctx, op, acct, pending, onChain, vv, token)
	}
	if err != nil {
		s.releaseLease(id, token)
		return nil, err
	}
	return s.load(ctx, op, id)
}

func (s *Service) verify(ctx context.Context, op string, acct domain.Account, p domain.PendingAction, onChain domain.OnChainAction, v VerifyVerdict, token string) error {
	var (
		txRef  string
		amount = v.TokenAmount
		serial int64
	)
	switch onChain.State {
	case domain.LedgerActionPending:
		mint, err := s.Ledger.ApproveAction(ctx, acct.Address, p.LedgerActionID, v.TokenAmount)
		if err != nil {
			return err
		}
		txRef = mint.TxRef
		if len(mint.Serials) == 0 {
			return apperr.MirrorWrite(op, txRef, apperr.New(apperr.KindInternal, op, "mint receipt carries no serial"))
		}
		serial = mint.Serials[len(mint.Serials)-1]
	case domain.LedgerActionVerified, domain.LedgerActionRedeemed:
		// An earlier attempt minted but never reached the mirror.
		amount = onChain.TokenAmount
		serial = onChain.Serial
		s.Logger.Info().Uint64("ledger_action_id", p.LedgerActionID).Msg("verdict already on ledger, converging mirror")
	default:
		return apperr.Invariant(op, "ledger already rejected this action")
	}

	if err := s.appendVerdict(ctx, onChain.State != domain.LedgerActionPending, audit.Entry{
		ChannelID:      s.ChannelID,
		LedgerActionID: p.LedgerActionID,
		Kind:           domain.AuditVerdictVerified,
		Verdict: audit.Verdict{
			VerificationStatus: string(domain.ActionVerified),
			CO2Impact:          v.CO2Impact.String(),
			TokensMinted:       amount.String(),
			SerialNumbers:      []int64{serial},
			TxRef:              txRef,
		},
	}); err != nil {
		return apperr.MirrorWrite(op, txRef, err)
	}

	fields := map[string]interface{}{
		"status":        domain.ActionVerified,
		"co2_impact":    v.CO2Impact,
		"tokens_minted": amount,
		"serial_number": serial,
	}
	if txRef != "" {
		fields["verdict_tx_ref"] = txRef
	}
	ok, err := s.transition(ctx, p.ID, domain.ActionPending, token, fields)
	if err != nil {
		s.Logger.Error().Err(err).Str("tx_ref", txRef).Str("action_id", p.ID.String()).Msg("minted but mirror write failed")
		return apperr.MirrorWrite(op, txRef, err)
	}
	if !ok {
		return apperr.MirrorWrite(op, txRef, apperr.Invariant(op, "lease lost before the mirror write"))
	}

	if s.Rounds != nil {
		if err := s.Rounds.Accrue(ctx, v.CO2Impact); err != nil {
			s.Logger.Warn().Err(err).Str("action_id", p.ID.String()).Msg("could not accrue impact to the active round")
		}
	}
	s.Logger.Info().Str("action_id", p.ID.String()).Str("tokens", amount.String()).Int64("serial", serial).Msg("action verified")
	return nil
}

func (s *Service) reject(ctx context.Context, op string, acct domain.Account, p domain.PendingAction, onChain domain.OnChainAction, v RejectVerdict, token string) error {
	var txRef string
	switch onChain.State {
	case domain.LedgerActionPending:
		ref, err := s.Ledger.RejectAction(ctx, acct.Address, p.LedgerActionID)
		if err != nil {
			return err
		}
		txRef = ref
	case domain.LedgerActionRejected:
		s.Logger.Info().Uint64("ledger_action_id", p.LedgerActionID).Msg("rejection already on ledger, converging mirror")
	default:
		return apperr.Invariant(op, "ledger already verified this action")
	}

	if err := s.appendVerdict(ctx, onChain.State != domain.LedgerActionPending, audit.Entry{
		ChannelID:      s.ChannelID,
		LedgerActionID: p.LedgerActionID,
		Kind:           domain.AuditVerdictRejected,
		Verdict: audit.Verdict{
			VerificationStatus: string(domain.ActionRejected),
			Reason:             v.Reason,
			TxRef:              txRef,
		},
	}); err != nil {
		return apperr.MirrorWrite(op, txRef, err)
	}

	fields := map[string]interface{}{"status": domain.ActionRejected}
	if txRef != "" {
		fields["verdict_tx_ref"] = txRef
	}
	ok, err := s.transition(ctx, p.ID, domain.ActionPending, token, fields)
	if err != nil {
		return apperr.MirrorWrite(op, txRef, err)
	}
	if !ok {
		return apperr.MirrorWrite(op, txRef, apperr.Invariant(op, "lease lost before the mirror write"))
	}
	s.Logger.Info().Str("action_id", p.ID.String()).Msg("action rejected")
	return nil
}

// appendVerdict writes the review record. When converging on a verdict an earlier attempt already
// put on the ledger, a matching latest record means that attempt got this far and nothing is added.
func (s *Service) appendVerdict(ctx context.Context, converging bool, e audit.Entry) error {
	if converging {
		latest, err := s.Audit.Latest(ctx, e.ChannelID, e.LedgerActionID)
		switch {
		case err == nil && latest.Kind == e.Kind:
			return nil
		case err != nil && !apperr.Is(err, apperr.KindNotFound):
			s.Logger.Warn().Err(err).Uint64("ledger_action_id", e.LedgerActionID).Msg("could not read audit log, appending")
		}
	}
	return s.Audit.Append(ctx, e)
}
