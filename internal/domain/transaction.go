package domain

import (
	"time"

	"ecofusion-backend/internal/pkg/fixedpoint"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Transaction records one ledger-settled fill. TxRef is the idempotency key.
type Transaction struct {
	TxID            uuid.UUID         `gorm:"column:tx_id;type:uuid;primaryKey" json:"tx_id"`
	TxRef           string            `gorm:"column:tx_ref;not null;uniqueIndex" json:"tx_ref"`
	ListingID       uuid.UUID         `gorm:"column:listing_id;type:uuid;not null;index" json:"listing_id"`
	LedgerListingID uint64            `gorm:"column:ledger_listing_id;not null" json:"ledger_listing_id"`
	Buyer           string            `gorm:"column:buyer;type:varchar(64);not null;index" json:"buyer"`
	Seller          string            `gorm:"column:seller;type:varchar(64);not null;index" json:"seller"`
	Amount          fixedpoint.Amount `gorm:"column:amount;type:numeric(38,0);not null" json:"amount"`
	TotalPrice      fixedpoint.Amount `gorm:"column:total_price;type:numeric(38,0);not null" json:"total_price"`
	BlockNumber     uint64            `gorm:"column:block_number" json:"block_number"`
	CreatedAt       time.Time         `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt       time.Time         `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Transaction) TableName() string {
	return "Transactions"
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.TxID == uuid.Nil {
		t.TxID = uuid.New()
	}
	return nil
}
