package actions

import (
	"context"
	"testing"
	"time"

	"ecofusion-backend/internal/domain"
	"ecofusion-backend/internal/infrastructure/audit"
	"ecofusion-backend/internal/pkg/fixedpoint"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile_RestoresSubmissionMissingFromMirror(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	// Ledger accepted the submission but the mirror write never happened.
	require.NoError(t, h.intents.Put(ctx, "ipfs://lost", domain.SubmitIntent{ActionType: "composting", Description: "kitchen scraps"}))
	_, err := h.ledger.SubmitAction(ctx, alice, "ipfs://lost")
	require.NoError(t, err)
	_, err = h.ledger.SubmitAction(ctx, bob, "ipfs://uncached")
	require.NoError(t, err)

	report, err := h.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Restored)

	mine, err := h.svc.ListActionsForOwner(ctx, alice)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "composting", mine[0].ActionType)
	assert.Equal(t, "kitchen scraps", mine[0].Description)
	assert.Equal(t, domain.ActionPending, mine[0].Status)
	assert.Equal(t, "0xsubmit1", mine[0].SubmitTxRef)

	theirs, err := h.svc.ListActionsForOwner(ctx, bob)
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.Equal(t, domain.ActionTypeUnknown, theirs[0].ActionType)

	again, err := h.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Total())
}

func TestReconcile_ConvergesVerdictAppliedOnLedger(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.submit(t, alice, "ipfs://e")

	// The verdict minted and was audited, but the mirror write was lost.
	mint, err := h.ledger.ApproveAction(ctx, admin, 1, fixedpoint.MustParse("75"))
	require.NoError(t, err)
	require.NoError(t, h.svc.Audit.Append(ctx, audit.Entry{
		ChannelID: "review", LedgerActionID: 1, Kind: domain.AuditVerdictVerified,
		Verdict: audit.Verdict{VerificationStatus: "verified", CO2Impact: "8.25", TokensMinted: "75", SerialNumbers: mint.Serials, TxRef: mint.TxRef},
	}))

	// Inside the grace period nothing moves.
	report, err := h.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Verified)

	h.svc.Now = func() time.Time { return time.Now().Add(time.Hour) }
	report, err = h.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Verified)

	got, err := h.svc.GetAction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionVerified, got.Status)
	assert.Equal(t, "8.25", got.CO2Impact.String())
	assert.True(t, got.TokensMinted.Equal(fixedpoint.MustParse("75")))
	assert.Equal(t, mint.TxRef, *got.VerdictTxRef)

	again, err := h.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Total())
}

func TestReconcile_ConvergesRejectionAndRedemption(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rejected := h.submit(t, alice, "ipfs://r")
	claimed := h.submit(t, alice, "ipfs://c")
	h.verify(t, claimed.ID, "10")

	_, err := h.ledger.RejectAction(ctx, admin, *rejected.LedgerActionID)
	require.NoError(t, err)
	_, err = h.ledger.RedeemAction(ctx, alice, 1)
	require.NoError(t, err)

	h.svc.Now = func() time.Time { return time.Now().Add(time.Hour) }
	report, err := h.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rejected)
	assert.Equal(t, 1, report.Claimed)

	got, err := h.svc.GetAction(ctx, rejected.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionRejected, got.Status)
	got, err = h.svc.GetAction(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionClaimed, got.Status)
}

func TestReconcile_LeavesVerifiedOnLedgerWithoutAuditPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.submit(t, alice, "ipfs://e")
	_, err := h.ledger.ApproveAction(ctx, admin, 1, fixedpoint.MustParse("5"))
	require.NoError(t, err)

	h.svc.Now = func() time.Time { return time.Now().Add(time.Hour) }
	report, err := h.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Verified)

	got, err := h.svc.GetAction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionPending, got.Status)
}
