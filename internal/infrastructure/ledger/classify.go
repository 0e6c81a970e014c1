package ledger

import (
	"context"
	"errors"
	"strings"

	"ecofusion-backend/internal/pkg/apperr"
)

// classify maps a node or transport error onto the lifecycle error taxonomy.
func classify(op string, err error) *apperr.Error {
	if err == nil {
		return nil
	}
	if e, ok := apperr.As(err); ok {
		return e
	}
	if errors.Is(err, context.Canceled) {
		return apperr.Wrap(apperr.KindNetworkTimeout, op, "ledger call cancelled", err)
	}
	if isTransportError(err) {
		return apperr.Wrap(apperr.KindNetworkTimeout, op, "ledger node unreachable", err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "insufficient funds", "insufficient_payer_balance", "insufficient payer balance", "insufficient_tx_fee"):
		return apperr.Wrap(apperr.KindInsufficientFunds, op, "insufficient funds for ledger fee", err)
	case containsAny(msg, "intrinsic gas too low", "out of gas", "insufficient_gas", "gas required exceeds"):
		return apperr.Wrap(apperr.KindInsufficientGas, op, "insufficient gas", err)
	case containsAny(msg, "execution reverted", "contract_revert", "revert"):
		return apperr.Wrap(apperr.KindContractReverted, op, "contract reverted", err)
	default:
		return apperr.Wrap(apperr.KindLedgerRejected, op, "ledger rejected the transaction", err)
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func isAlreadyAssociated(err error) bool {
	return err != nil && strings.Contains(strings.ToUpper(err.Error()), "TOKEN_ALREADY_ASSOCIATED")
}
