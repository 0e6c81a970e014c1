package response

import (
	"ecofusion-backend/internal/pkg/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return fiber.StatusBadRequest
	case apperr.KindForbidden:
		return fiber.StatusForbidden
	case apperr.KindNotFound:
		return fiber.StatusNotFound
	case apperr.KindSigningFailed, apperr.KindUserRejected:
		return fiber.StatusFailedDependency
	case apperr.KindSigningTimeout:
		return fiber.StatusRequestTimeout
	case apperr.KindLedgerRejected, apperr.KindContractReverted,
		apperr.KindInsufficientFunds, apperr.KindInsufficientGas:
		return fiber.StatusUnprocessableEntity
	case apperr.KindLedgerUnconfirmed, apperr.KindNetworkTimeout:
		return fiber.StatusGatewayTimeout
	case apperr.KindMirrorWriteFailed:
		return fiber.StatusBadGateway
	case apperr.KindInvariantViolation:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// FromError writes err in the standard error envelope. Details carry the kind, retry hint, the
// known ledger outcome and the tx reference when there is one.
func FromError(c *fiber.Ctx, err error) error {
	e, ok := apperr.As(err)
	if !ok {
		e = apperr.Internal("", err)
	}
	code := StatusFor(e.Kind)

	details := map[string]interface{}{
		"kind":    e.Kind,
		"retry":   e.Retry(),
		"outcome": e.Outcome(),
	}
	if e.TxRef != "" {
		details["tx_ref"] = e.TxRef
	}
	for k, v := range e.Context {
		details[k] = v
	}

	message := e.Message
	switch {
	case e.Kind == apperr.KindInternal:
		message = "Internal Server Error"
		log.Error().Err(err).Str("op", e.Op).Str("path", c.Path()).Msg("request failed")
	case e.MustReconcile():
		log.Warn().Err(err).Str("op", e.Op).Str("tx_ref", e.TxRef).Str("kind", string(e.Kind)).
			Msg("ledger outcome needs reconciliation")
	}
	return Error(c, message, code, details)
}
