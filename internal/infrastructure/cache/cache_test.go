package cache

import (
	"context"
	"testing"

	"ecofusion-backend/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestCursors_AdvanceIsMonotonic(t *testing.T) {
	c := NewCursors(newRedis(t))
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "fills")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Advance(ctx, "fills", 120))
	require.NoError(t, c.Advance(ctx, "fills", 80))

	n, ok, err := c.Get(ctx, "fills")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(120), n)
}

func TestIntents_PutGet(t *testing.T) {
	i := NewIntents(newRedis(t))
	ctx := context.Background()

	_, ok, err := i.Get(ctx, "ipfs://missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, i.Put(ctx, "ipfs://a", domain.SubmitIntent{ActionType: "solar", Description: "panels"}))
	got, ok, err := i.Get(ctx, "ipfs://a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "solar", got.ActionType)
	assert.Equal(t, "panels", got.Description)
}
