package actions

import (
	"context"
	"strings"
	"time"

	"ecofusion-backend/internal/domain"
	"ecofusion-backend/internal/pkg/apperr"
	"ecofusion-backend/internal/pkg/metrics"
	"ecofusion-backend/internal/pkg/validation"

	"github.com/google/uuid"
)

// counterLookback bounds how far below the counter Submit searches for its own action when other
// submissions landed in between.
const counterLookback = 16

type SubmitInput struct {
	ActionType  string
	Description string
	Location    string
	ActionDate  *time.Time
	EvidenceURI string
}

func (in SubmitInput) validate(op string, acct domain.Account) error {
	if acct.Address == "" {
		return apperr.Validation(op, "a wallet account is required")
	}
	if !domain.IsValidActionType(in.ActionType) {
		return apperr.Validation(op, "unknown action type: "+in.ActionType)
	}
	if strings.TrimSpace(in.Description) == "" {
		return apperr.Validation(op, "description is required")
	}
	if !validation.IsValidEvidenceURI(in.EvidenceURI) {
		return apperr.Validation(op, "evidence must be an ipfs:// or https:// uri")
	}
	return nil
}

// Submit registers a claim on the ledger and mirrors it as pending. Nothing is stored unless the
// ledger accepted the submission.
func (s *Service) Submit(ctx context.Context, acct domain.Account, in SubmitInput) (action *domain.Action, err error) {
	const op = "actions.submit"
	defer func() { metrics.ObserveLifecycle(op, err) }()

	if err := in.validate(op, acct); err != nil {
		return nil, err
	}

	intent := domain.SubmitIntent{
		ActionType:  in.ActionType,
		Description: strings.TrimSpace(in.Description),
		Location:    strings.TrimSpace(in.Location),
		ActionDate:  in.ActionDate,
	}
	if acct.UserID != uuid.Nil {
		uid := acct.UserID
		intent.UserID = &uid
	}
	if s.Intents != nil {
		if err := s.Intents.Put(ctx, in.EvidenceURI, intent); err != nil {
			s.Logger.Warn().Err(err).Str("evidence_uri", in.EvidenceURI).Msg("could not cache submit intent")
		}
	}

	txRef, err := s.Ledger.SubmitAction(ctx, acct.Address, in.EvidenceURI)
	if err != nil {
		return nil, err
	}

	ledgerID, err := s.resolveLedgerID(ctx, acct.Address, in.EvidenceURI)
	if err != nil {
		s.Logger.Error().Err(err).Str("tx_ref", txRef).Msg("submitted on ledger but could not read the action id")
		return nil, apperr.MirrorWrite(op, txRef, err)
	}

	action = &domain.Action{
		LedgerActionID:  &ledgerID,
		Owner:           acct.Address,
		UserID:          intent.UserID,
		ActionType:      intent.ActionType,
		Description:     intent.Description,
		Location:        intent.Location,
		ActionDate:      intent.ActionDate,
		EvidenceURI:     in.EvidenceURI,
		Status:          domain.ActionPending,
		ReviewChannelID: s.ChannelID,
		SubmitTxRef:     txRef,
	}
	if err := s.DB.WithContext(ctx).Create(action).Error; err != nil {
		s.Logger.Error().Err(err).Str("tx_ref", txRef).Uint64("ledger_action_id", ledgerID).
			Msg("submitted on ledger but mirror write failed")
		return nil, apperr.MirrorWrite(op, txRef, err)
	}

	s.Logger.Info().Str("action_id", action.ID.String()).Uint64("ledger_action_id", ledgerID).
		Str("owner", acct.Address).Msg("action submitted")
	return action, nil
}

// resolveLedgerID reads the action counter and walks down until it finds the action owned by
// account with this evidence, since concurrent submissions can move the counter.
func (s *Service) resolveLedgerID(ctx context.Context, account, evidenceURI string) (uint64, error) {
	var counter uint64
	err := apperr.RetryWithConfig(ctx, func() error {
		var e error
		counter, e = s.Ledger.ActionCounter(ctx)
		return e
	}, nil)
	if err != nil {
		return 0, err
	}

	for id := counter; id > 0 && counter-id < counterLookback; id-- {
		var onChain domain.OnChainAction
		err := apperr.RetryWithConfig(ctx, func() error {
			var e error
			onChain, e = s.Ledger.GetAction(ctx, id)
			return e
		}, nil)
		if apperr.Is(err, apperr.KindNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if strings.EqualFold(onChain.Owner, account) && onChain.MetadataURI == evidenceURI {
			return id, nil
		}
	}
	return 0, apperr.New(apperr.KindNotFound, "actions.resolve_ledger_id", "submitted action not found near the counter")
}
