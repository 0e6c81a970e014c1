package domain

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	AuditVerdictVerified = "verdict.verified"
	AuditVerdictRejected = "verdict.rejected"
)

// AuditRecord is one entry of the append-only review channel (database backend).
type AuditRecord struct {
	ID             uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Seq            int64          `gorm:"column:seq;not null;index" json:"seq"`
	ChannelID      string         `gorm:"column:channel_id;not null;index:idx_audit_channel_action" json:"channel_id"`
	LedgerActionID uint64         `gorm:"column:ledger_action_id;not null;index:idx_audit_channel_action" json:"ledger_action_id"`
	Kind           string         `gorm:"column:kind;type:varchar(40);not null" json:"kind"`
	Payload        datatypes.JSON `gorm:"column:payload;type:jsonb;not null" json:"payload"`
	CreatedAt      time.Time      `gorm:"column:createdAt" json:"createdAt"`
}

func (AuditRecord) TableName() string {
	return "AuditRecords"
}

func (r *AuditRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Seq == 0 {
		r.Seq = nextAuditSeq()
	}
	return nil
}

var lastAuditSeq int64

// nextAuditSeq is wall-clock nanoseconds, bumped so that it is strictly increasing in-process.
func nextAuditSeq() int64 {
	for {
		last := atomic.LoadInt64(&lastAuditSeq)
		next := time.Now().UnixNano()
		if next <= last {
			next = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastAuditSeq, last, next) {
			return next
		}
	}
}
