package audit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Verdict is the message appended for every decided claim.
type Verdict struct {
	VerificationStatus string  `json:"verification_status"`
	CO2Impact          string  `json:"co2Impact,omitempty"`
	TokensMinted       string  `json:"tokensMinted,omitempty"`
	SerialNumbers      []int64 `json:"serialNumbers,omitempty"`
	Reason             string  `json:"reason,omitempty"`
	TxRef              string  `json:"tx_ref"`
}

type Entry struct {
	ChannelID      string
	LedgerActionID uint64
	Kind           string
	Verdict        Verdict
}

type Record struct {
	Entry
	At time.Time
}

// Channel is an append-only review log. Latest returns a NotFound error when the action has no entry.
type Channel interface {
	Append(ctx context.Context, e Entry) error
	Latest(ctx context.Context, channelID string, ledgerActionID uint64) (*Record, error)
}

// New picks the backend named by kind: "redis" for streams, anything else for the database table.
func New(kind string, db *gorm.DB, rdb *redis.Client, logger zerolog.Logger) Channel {
	if kind == "redis" && rdb != nil {
		logger.Info().Str("backend", "redis").Msg("audit channel ready")
		return NewRedisStream(rdb)
	}
	logger.Info().Str("backend", "database").Msg("audit channel ready")
	return NewGormLog(db)
}
