package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryHints(t *testing.T) {
	cases := []struct {
		kind      Kind
		retry     string
		safe      bool
		reconcile bool
	}{
		{KindValidation, RetrySafeAfterCorrection, true, false},
		{KindSigningTimeout, RetrySafe, true, false},
		{KindUserRejected, RetrySafe, true, false},
		{KindContractReverted, RetrySafe, true, false},
		{KindLedgerUnconfirmed, RetryReconcileFirst, false, true},
		{KindNetworkTimeout, RetryReconcileFirst, false, true},
		{KindMirrorWriteFailed, RetryReconcileFirst, false, true},
		{KindInvariantViolation, RetryNone, false, false},
	}
	for _, tc := range cases {
		e := New(tc.kind, "op", "msg")
		assert.Equal(t, tc.retry, e.Retry(), tc.kind)
		assert.Equal(t, tc.safe, e.SafeToRetry(), tc.kind)
		assert.Equal(t, tc.reconcile, e.MustReconcile(), tc.kind)
	}
}

func TestKindOf_Wrapped(t *testing.T) {
	base := MirrorWrite("actions.submit", "0xabc", errors.New("db down"))
	wrapped := fmt.Errorf("handler: %w", base)

	assert.Equal(t, KindMirrorWriteFailed, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindMirrorWriteFailed))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))

	e, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, "0xabc", e.TxRef)
	assert.Equal(t, "ledger_applied", e.Outcome())
	assert.Contains(t, e.Error(), "db down")
}

func TestRetryWithConfig_RetriesNetworkOnly(t *testing.T) {
	cfg := &RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2, Retryable: []Kind{KindNetworkTimeout}}

	calls := 0
	err := RetryWithConfig(context.Background(), func() error {
		calls++
		if calls < 3 {
			return New(KindNetworkTimeout, "read", "timeout")
		}
		return nil
	}, cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = RetryWithConfig(context.Background(), func() error {
		calls++
		return New(KindContractReverted, "read", "revert")
	}, cfg)
	assert.True(t, Is(err, KindContractReverted))
	assert.Equal(t, 1, calls)
}
