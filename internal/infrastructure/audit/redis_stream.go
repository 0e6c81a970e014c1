package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ecofusion-backend/internal/pkg/apperr"

	"github.com/redis/go-redis/v9"
)

// RedisStream keeps one stream per action so Latest is a single XREVRANGE.
type RedisStream struct {
	rdb *redis.Client
}

func NewRedisStream(rdb *redis.Client) *RedisStream {
	return &RedisStream{rdb: rdb}
}

func streamKey(channelID string, ledgerActionID uint64) string {
	return fmt.Sprintf("audit:%s:%d", channelID, ledgerActionID)
}

func (s *RedisStream) Append(ctx context.Context, e Entry) error {
	payload, err := json.Marshal(e.Verdict)
	if err != nil {
		return apperr.Internal("audit.append", err)
	}
	err = s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(e.ChannelID, e.LedgerActionID),
		Values: map[string]interface{}{"kind": e.Kind, "payload": string(payload)},
	}).Err()
	if err != nil {
		return apperr.Internal("audit.append", err)
	}
	return nil
}

func (s *RedisStream) Latest(ctx context.Context, channelID string, ledgerActionID uint64) (*Record, error) {
	const op = "audit.latest"
	msgs, err := s.rdb.XRevRangeN(ctx, streamKey(channelID, ledgerActionID), "+", "-", 1).Result()
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	if len(msgs) == 0 {
		return nil, apperr.NotFound(op, "no audit record for action")
	}
	msg := msgs[0]
	kind, _ := msg.Values["kind"].(string)
	raw, _ := msg.Values["payload"].(string)
	var v Verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, apperr.Internal(op, err)
	}
	return &Record{
		Entry: Entry{ChannelID: channelID, LedgerActionID: ledgerActionID, Kind: kind, Verdict: v},
		At:    streamIDTime(msg.ID),
	}, nil
}

// streamIDTime reads the millisecond part of a "<ms>-<seq>" stream id.
func streamIDTime(id string) time.Time {
	ms, err := strconv.ParseInt(strings.SplitN(id, "-", 2)[0], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
