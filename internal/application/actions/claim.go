package actions

import (
	"context"
	"math/big"

	"ecofusion-backend/internal/domain"
	"ecofusion-backend/internal/pkg/apperr"
	"ecofusion-backend/internal/pkg/metrics"

	"github.com/google/uuid"
)

// Claim redeems the minted NFT of a verified action for carbon credit tokens. Each ledger step is
// skipped when the ledger already shows it done, so re-invoking after a partial failure converges.
func (s *Service) Claim(ctx context.Context, acct domain.Account, id uuid.UUID) (err error) {
	const op = "actions.claim"
	defer func() { metrics.ObserveLifecycle(op, err) }()

	row, err := s.load(ctx, op, id)
	if err != nil {
		return err
	}
	variant, err := row.Variant()
	if err != nil {
		return err
	}
	verified, ok := variant.(domain.VerifiedAction)
	if !ok {
		return apperr.Invariant(op, "only verified actions can be claimed, action is "+string(row.Status)).
			WithContext("status", row.Status)
	}
	if !acct.Owns(verified.Owner) {
		return apperr.Forbidden(op, "only the owner can claim this action")
	}

	token, err := s.acquireLease(ctx, op, id, domain.ActionVerified, s.claimLeaseFor())
	if err != nil {
		return err
	}
	claimRef, err := s.redeem(ctx, op, acct, verified)
	if err != nil {
		s.releaseLease(id, token)
		return err
	}

	fields := map[string]interface{}{"status": domain.ActionClaimed}
	if claimRef != "" {
		fields["claim_tx_ref"] = claimRef
	}
	done, err := s.transition(ctx, id, domain.ActionVerified, token, fields)
	if err != nil || !done {
		s.releaseLease(id, token)
		if err == nil {
			err = apperr.Invariant(op, "lease lost before the mirror write")
		}
		s.Logger.Error().Err(err).Str("tx_ref", claimRef).Str("action_id", id.String()).Msg("redeemed but mirror write failed")
		return apperr.MirrorWrite(op, claimRef, err)
	}
	s.Logger.Info().Str("action_id", id.String()).Int64("serial", verified.Serial).Msg("action claimed")
	return nil
}

func (s *Service) redeem(ctx context.Context, op string, acct domain.Account, v domain.VerifiedAction) (string, error) {
	onChain, err := s.Ledger.GetAction(ctx, v.LedgerActionID)
	if err != nil {
		return "", err
	}
	switch onChain.State {
	case domain.LedgerActionRedeemed:
		s.Logger.Info().Uint64("ledger_action_id", v.LedgerActionID).Msg("already redeemed on ledger, converging mirror")
		return "", nil
	case domain.LedgerActionVerified:
	default:
		return "", apperr.Invariant(op, "ledger does not show this action as verified")
	}

	if _, err := s.Ledger.GrantAllowance(ctx, acct.Address, domain.AssetActionNFT, big.NewInt(v.Serial)); err != nil {
		return "", err
	}
	associated, err := s.Ledger.IsAssociated(ctx, acct.Address)
	if err != nil {
		return "", err
	}
	if !associated {
		if _, err := s.Ledger.Associate(ctx, acct.Address); err != nil {
			return "", err
		}
	}
	return s.Ledger.RedeemAction(ctx, acct.Address, v.Serial)
}
