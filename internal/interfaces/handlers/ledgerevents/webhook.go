package ledgerevents

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"ecofusion-backend/internal/domain"
	"ecofusion-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

const SignatureHeader = "X-Ledger-Signature"

// FillHandler applies an observed ListingFilled event to the mirror.
type FillHandler interface {
	HandleFill(ctx context.Context, ev domain.FillEvent) (*domain.Transaction, bool, error)
}

type WebhookHandler struct {
	Fills  FillHandler
	Secret string
}

// HandleWebhook POST /api/v1/ledger/events. The relay keeps an event and redelivers it until it
// gets a 2xx, so unknown listings answer 404 and the fill lands after reconciliation restores
// the listing.
func (wh *WebhookHandler) HandleWebhook(c *fiber.Ctx) error {
	rawBody := c.BodyRaw()
	sig := c.Get(SignatureHeader)

	if len(rawBody) == 0 {
		return response.Error(c, "Webhook Error: empty body", fiber.StatusBadRequest, nil)
	}
	if err := verifySignature(rawBody, sig, wh.Secret); err != nil {
		log.Warn().Err(err).Bool("has_sig", sig != "").Bool("has_secret", wh.Secret != "").
			Msg("ledger webhook signature verification failed")
		return response.Error(c, "Webhook Error: "+err.Error(), fiber.StatusUnauthorized, nil)
	}

	var ev domain.FillEvent
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		return response.Error(c, "Webhook Error: "+err.Error(), fiber.StatusBadRequest, nil)
	}
	if ev.TxRef == "" || !ev.Amount.IsPositive() {
		return response.Error(c, "Webhook Error: tx_ref and a positive amount are required", fiber.StatusBadRequest, nil)
	}

	txn, duplicate, err := wh.Fills.HandleFill(c.UserContext(), ev)
	if err != nil {
		log.Warn().Err(err).Str("tx_ref", ev.TxRef).Uint64("listing_id", ev.LedgerListingID).
			Msg("ledger fill not applied")
		return response.FromError(c, err)
	}
	return response.Success(c, "ok", txn, fiber.Map{"duplicate": duplicate})
}

// Sign returns the hex HMAC-SHA256 of payload, the value the relay sends in SignatureHeader.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func verifySignature(payload []byte, sigHeader, secret string) error {
	if sigHeader == "" || secret == "" {
		return errors.New("missing signature or secret")
	}
	got, err := hex.DecodeString(strings.TrimPrefix(sigHeader, "sha256="))
	if err != nil {
		return errors.New("malformed signature")
	}
	want, _ := hex.DecodeString(Sign(payload, secret))
	if !hmac.Equal(got, want) {
		return errors.New("signature mismatch")
	}
	return nil
}
