package app

import (
	"context"
	"testing"

	"ecofusion-backend/internal/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileAll_FailedPassDoesNotSkipTheNext(t *testing.T) {
	ran := []string{}
	passes := []reconcilePass{
		{name: "actions", run: func(ctx context.Context) (int, error) {
			ran = append(ran, "actions")
			return 1, apperr.New(apperr.KindNetworkTimeout, "ledger.block_number", "relay timed out")
		}},
		{name: "listings", run: func(ctx context.Context) (int, error) {
			ran = append(ran, "listings")
			return 2, nil
		}},
	}

	n, err := reconcileAll(context.Background(), passes)
	require.Error(t, err)
	assert.Equal(t, []string{"actions", "listings"}, ran)
	assert.Equal(t, 3, n)
	assert.Contains(t, err.Error(), "actions: ")
	assert.Equal(t, apperr.KindNetworkTimeout, apperr.KindOf(err))
}

func TestReconcileAll_JoinsEveryFailure(t *testing.T) {
	passes := []reconcilePass{
		{name: "actions", run: func(ctx context.Context) (int, error) {
			return 0, apperr.Internal("actions.reconcile", assert.AnError)
		}},
		{name: "listings", run: func(ctx context.Context) (int, error) {
			return 0, apperr.Internal("listings.reconcile", assert.AnError)
		}},
	}

	_, err := reconcileAll(context.Background(), passes)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "actions: ")
	assert.Contains(t, err.Error(), "listings: ")
}

func TestReconcileAll_Clean(t *testing.T) {
	n, err := reconcileAll(context.Background(), []reconcilePass{
		{name: "actions", run: func(ctx context.Context) (int, error) { return 0, nil }},
	})
	require.NoError(t, err)
	assert.Zero(t, n)
}
