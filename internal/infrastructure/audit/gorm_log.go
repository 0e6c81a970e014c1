package audit

import (
	"context"
	"encoding/json"
	"errors"

	"ecofusion-backend/internal/domain"
	"ecofusion-backend/internal/pkg/apperr"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GormLog stores the channel in the AuditRecords table. Rows are only ever inserted.
type GormLog struct {
	db *gorm.DB
}

func NewGormLog(db *gorm.DB) *GormLog {
	return &GormLog{db: db}
}

func (g *GormLog) Append(ctx context.Context, e Entry) error {
	payload, err := json.Marshal(e.Verdict)
	if err != nil {
		return apperr.Internal("audit.append", err)
	}
	rec := domain.AuditRecord{
		ChannelID:      e.ChannelID,
		LedgerActionID: e.LedgerActionID,
		Kind:           e.Kind,
		Payload:        datatypes.JSON(payload),
	}
	if err := g.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return apperr.Internal("audit.append", err)
	}
	return nil
}

func (g *GormLog) Latest(ctx context.Context, channelID string, ledgerActionID uint64) (*Record, error) {
	const op = "audit.latest"
	var rec domain.AuditRecord
	err := g.db.WithContext(ctx).
		Where("channel_id = ? AND ledger_action_id = ?", channelID, ledgerActionID).
		Order("seq DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound(op, "no audit record for action")
	}
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	var v Verdict
	if err := json.Unmarshal(rec.Payload, &v); err != nil {
		return nil, apperr.Internal(op, err)
	}
	return &Record{
		Entry: Entry{ChannelID: rec.ChannelID, LedgerActionID: rec.LedgerActionID, Kind: rec.Kind, Verdict: v},
		At:    rec.CreatedAt,
	}, nil
}
