package cache

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Cursors persists the last ledger block each reconciliation scan has processed.
type Cursors struct {
	rdb *redis.Client
}

func NewCursors(rdb *redis.Client) *Cursors {
	return &Cursors{rdb: rdb}
}

func cursorKey(stream string) string { return "reconcile:cursor:" + stream }

// Get returns the stored block and whether one exists.
func (c *Cursors) Get(ctx context.Context, stream string) (uint64, bool, error) {
	v, err := c.rdb.Get(ctx, cursorKey(stream)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrapf(err, "read cursor %s", stream)
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false, errors.Wrapf(err, "parse cursor %s", stream)
	}
	return n, true, nil
}

// Advance stores block unless the stored cursor is already past it.
func (c *Cursors) Advance(ctx context.Context, stream string, block uint64) error {
	key := cursorKey(stream)
	err := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil && cur >= block {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, strconv.FormatUint(block, 10), 0)
			return nil
		})
		return err
	}, key)
	return errors.Wrapf(err, "advance cursor %s", stream)
}
