package domain

import (
	"strings"
	"time"

	"ecofusion-backend/internal/pkg/fixedpoint"

	"github.com/google/uuid"
)

// Account is the explicit caller context handed to every lifecycle operation.
type Account struct {
	UserID  uuid.UUID
	Address string // wallet account (EVM address form)
	Role    string
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

func (a Account) IsAdmin() bool { return a.Role == RoleAdmin }

// Owns compares wallet addresses case-insensitively.
func (a Account) Owns(address string) bool {
	return a.Address != "" && strings.EqualFold(a.Address, address)
}

// Asset names a token class the ledger client can grant allowances on.
type Asset string

const (
	AssetCarbonCredit Asset = "carbon_credit" // fungible ECC token
	AssetActionNFT    Asset = "action_nft"    // per-claim NFT minted on approval
)

// LedgerActionState is the action status as recorded by the ActionRepository contract.
type LedgerActionState uint8

const (
	LedgerActionPending LedgerActionState = iota
	LedgerActionVerified
	LedgerActionRejected
	LedgerActionRedeemed
)

// OnChainAction is the canonical ledger view of a claim.
type OnChainAction struct {
	ID          uint64
	Owner       string
	State       LedgerActionState
	TokenAmount fixedpoint.Amount
	Serial      int64
	MetadataURI string
}

type MintReceipt struct {
	TxRef   string
	Serials []int64
}

type ListingReceipt struct {
	TxRef           string
	LedgerListingID uint64
}

// ActionSubmittedEvent is an ActionSubmitted log.
type ActionSubmittedEvent struct {
	LedgerActionID uint64
	Owner          string
	MetadataURI    string
	TxRef          string
	BlockNumber    uint64
}

// ListedEvent is a TokensListed log.
type ListedEvent struct {
	LedgerListingID uint64
	Seller          string
	Amount          fixedpoint.Amount
	TotalPrice      fixedpoint.Amount
	ExpiresAt       time.Time
	TxRef           string
	BlockNumber     uint64
}

// FillEvent is a ListingFilled log, delivered at least once.
type FillEvent struct {
	TxRef           string            `json:"tx_ref"`
	LedgerListingID uint64            `json:"listing_id"`
	Buyer           string            `json:"buyer"`
	Seller          string            `json:"seller"`
	Amount          fixedpoint.Amount `json:"amount"`
	TotalPrice      fixedpoint.Amount `json:"total_price"`
	BlockNumber     uint64            `json:"block_number"`
}
