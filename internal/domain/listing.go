package domain

import (
	"time"

	"ecofusion-backend/internal/pkg/fixedpoint"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ListingStatus string

const (
	ListingListed    ListingStatus = "listed"
	ListingFilled    ListingStatus = "filled"
	ListingExpired   ListingStatus = "expired"
	ListingCancelled ListingStatus = "cancelled"
)

// Listing mirrors a marketplace offer. The ledger decides fills; this row only records them.
type Listing struct {
	ListingID       uuid.UUID         `gorm:"column:listing_id;type:uuid;primaryKey" json:"listing_id"`
	Seller          string            `gorm:"column:seller;type:varchar(64);not null;index" json:"seller"`
	SellerUserID    *uuid.UUID        `gorm:"column:seller_user_id;type:uuid" json:"seller_user_id"`
	Tokens          fixedpoint.Amount `gorm:"column:tokens;type:numeric(38,0);not null" json:"tokens"`
	TokensRemaining fixedpoint.Amount `gorm:"column:tokens_remaining;type:numeric(38,0);not null" json:"tokens_remaining"`
	PricePerToken   fixedpoint.Amount `gorm:"column:price_per_token;type:numeric(38,0);not null" json:"price_per_token"`
	TotalPrice      fixedpoint.Amount `gorm:"column:total_price;type:numeric(38,0);not null" json:"total_price"`
	CO2Offset       *decimal.Decimal  `gorm:"column:co2_offset;type:numeric(18,4)" json:"co2_offset"`
	ExpiresAt       time.Time         `gorm:"column:expires_at;not null;index" json:"expires_at"`
	LedgerListingID *uint64           `gorm:"column:ledger_listing_id;uniqueIndex" json:"ledger_listing_id"`
	ListTxRef       string            `gorm:"column:list_tx_ref" json:"list_tx_ref"`
	Status          ListingStatus     `gorm:"column:status;type:varchar(20);not null;default:'listed';index" json:"status"`
	CreatedAt       time.Time         `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt       time.Time         `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Listing) TableName() string {
	return "Listings"
}

// BeforeCreate sets listing_id if not already set (DBs without default uuid).
func (l *Listing) BeforeCreate(tx *gorm.DB) error {
	if l.ListingID == uuid.Nil {
		l.ListingID = uuid.New()
	}
	return nil
}
