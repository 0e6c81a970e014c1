package domain

import (
	"time"

	"ecofusion-backend/internal/pkg/apperr"
	"ecofusion-backend/internal/pkg/fixedpoint"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ActionStatus string

const (
	ActionPending  ActionStatus = "pending"
	ActionVerified ActionStatus = "verified"
	ActionRejected ActionStatus = "rejected"
	ActionClaimed  ActionStatus = "claimed"
)

// ActionTypes are the sustainability actions a user can log.
var ActionTypes = []string{
	"recycling",
	"solar",
	"public-transport",
	"tree-planting",
	"energy-saving",
	"composting",
}

// ActionTypeUnknown marks rows restored by reconciliation without a cached submit intent.
const ActionTypeUnknown = "unknown"

// Action mirrors one on-ledger claim. Rows are written only after the ledger confirms.
type Action struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	LedgerActionID  *uint64            `gorm:"column:ledger_action_id;uniqueIndex" json:"ledger_action_id"`
	Owner           string             `gorm:"column:owner;type:varchar(64);not null;index" json:"owner"`
	UserID          *uuid.UUID         `gorm:"column:user_id;type:uuid" json:"user_id"`
	ActionType      string             `gorm:"column:action_type;type:varchar(32);not null" json:"action_type"`
	Description     string             `gorm:"column:description;not null" json:"description"`
	Location        string             `gorm:"column:location" json:"location"`
	ActionDate      *time.Time         `gorm:"column:action_date" json:"action_date"`
	EvidenceURI     string             `gorm:"column:evidence_uri;not null" json:"evidence_uri"`
	CO2Impact       *decimal.Decimal   `gorm:"column:co2_impact;type:numeric(18,4)" json:"co2_impact"`
	TokensMinted    *fixedpoint.Amount `gorm:"column:tokens_minted;type:numeric(38,0)" json:"tokens_minted"`
	SerialNumber    *int64             `gorm:"column:serial_number" json:"serial_number"`
	Status          ActionStatus       `gorm:"column:status;type:varchar(20);not null;default:'pending';index" json:"status"`
	ReviewChannelID string             `gorm:"column:review_channel_id" json:"review_channel_id"`
	SubmitTxRef     string             `gorm:"column:submit_tx_ref" json:"submit_tx_ref"`
	VerdictTxRef    *string            `gorm:"column:verdict_tx_ref" json:"verdict_tx_ref"`
	ClaimTxRef      *string            `gorm:"column:claim_tx_ref" json:"claim_tx_ref"`
	LeaseToken      *string            `gorm:"column:lease_token" json:"-"`
	LeaseExpiresAt  *time.Time         `gorm:"column:lease_expires_at" json:"-"`
	CreatedAt       time.Time          `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Action) TableName() string {
	return "Actions"
}

func (a *Action) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// ActionVariant is one of PendingAction, VerifiedAction, RejectedAction or ClaimedAction.
type ActionVariant interface {
	actionVariant()
}

type PendingAction struct {
	ID             uuid.UUID
	LedgerActionID uint64
	Owner          string
}

// VerifiedAction always carries the minted quantity, impact and serial.
type VerifiedAction struct {
	ID             uuid.UUID
	LedgerActionID uint64
	Owner          string
	CO2Impact      decimal.Decimal
	TokensMinted   fixedpoint.Amount
	Serial         int64
}

type RejectedAction struct {
	ID             uuid.UUID
	LedgerActionID uint64
	Owner          string
}

type ClaimedAction struct {
	VerifiedAction
}

func (PendingAction) actionVariant()  {}
func (VerifiedAction) actionVariant() {}
func (RejectedAction) actionVariant() {}
func (ClaimedAction) actionVariant()  {}

// Variant returns the typed view of the row. A row whose nullable fields disagree with its
// status is reported as an invariant violation instead of being coerced.
func (a *Action) Variant() (ActionVariant, error) {
	const op = "action.variant"
	if a.LedgerActionID == nil {
		return nil, apperr.Invariant(op, "action has no ledger id")
	}
	id := *a.LedgerActionID
	switch a.Status {
	case ActionPending:
		if a.CO2Impact != nil || a.TokensMinted != nil {
			return nil, apperr.Invariant(op, "pending action carries verification fields")
		}
		return PendingAction{ID: a.ID, LedgerActionID: id, Owner: a.Owner}, nil
	case ActionRejected:
		if a.CO2Impact != nil || a.TokensMinted != nil {
			return nil, apperr.Invariant(op, "rejected action carries verification fields")
		}
		return RejectedAction{ID: a.ID, LedgerActionID: id, Owner: a.Owner}, nil
	case ActionVerified, ActionClaimed:
		if a.CO2Impact == nil || a.TokensMinted == nil || a.SerialNumber == nil {
			return nil, apperr.Invariant(op, "verified action is missing co2 impact, tokens or serial")
		}
		v := VerifiedAction{
			ID:             a.ID,
			LedgerActionID: id,
			Owner:          a.Owner,
			CO2Impact:      *a.CO2Impact,
			TokensMinted:   *a.TokensMinted,
			Serial:         *a.SerialNumber,
		}
		if a.Status == ActionClaimed {
			return ClaimedAction{VerifiedAction: v}, nil
		}
		return v, nil
	default:
		return nil, apperr.Invariant(op, "unknown action status "+string(a.Status))
	}
}

// IsValidActionType reports whether t is a known action type.
func IsValidActionType(t string) bool {
	for _, at := range ActionTypes {
		if at == t {
			return true
		}
	}
	return false
}

// SubmitIntent is the descriptive part of a submission, kept so a row restored from a ledger
// event can get its fields back.
type SubmitIntent struct {
	UserID      *uuid.UUID `json:"user_id,omitempty"`
	ActionType  string     `json:"action_type"`
	Description string     `json:"description"`
	Location    string     `json:"location,omitempty"`
	ActionDate  *time.Time `json:"action_date,omitempty"`
}
