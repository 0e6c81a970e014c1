package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type RoundStatus string

const (
	RoundUpcoming  RoundStatus = "upcoming"
	RoundActive    RoundStatus = "active"
	RoundCompleted RoundStatus = "completed"
)

// VerraRound groups verified impact toward a certification target (kg CO2).
type VerraRound struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	RoundNumber    int             `gorm:"column:round_number;not null;uniqueIndex" json:"round_number"`
	TargetAmount   decimal.Decimal `gorm:"column:target_amount;type:numeric(18,4);not null" json:"target_amount"`
	AchievedAmount decimal.Decimal `gorm:"column:achieved_amount;type:numeric(18,4);not null;default:0" json:"achieved_amount"`
	Status         RoundStatus     `gorm:"column:status;type:varchar(20);not null;default:'upcoming';index" json:"status"`
	IsCertified    bool            `gorm:"column:is_certified;not null;default:false" json:"is_certified"`
	StartDate      *time.Time      `gorm:"column:start_date" json:"start_date"`
	EndDate        *time.Time      `gorm:"column:end_date" json:"end_date"`
	TopicID        *string         `gorm:"column:topic_id" json:"topic_id"`
	CreatedAt      time.Time       `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt      time.Time       `gorm:"column:updatedAt" json:"updatedAt"`
}

func (VerraRound) TableName() string {
	return "VerraRounds"
}

func (r *VerraRound) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
