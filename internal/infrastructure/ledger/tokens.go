package ledger

import (
	"context"
	"math/big"
	"time"

	"ecofusion-backend/internal/domain"
	"ecofusion-backend/internal/pkg/apperr"
	"ecofusion-backend/internal/pkg/fixedpoint"

	"github.com/ethereum/go-ethereum/common"
)

// GrantAllowance approves the contract that consumes asset: the action repository for NFT serials
// (value is the serial) and the marketplace for fungible credits (value is base units).
func (c *Client) GrantAllowance(ctx context.Context, account string, asset domain.Asset, value *big.Int) (string, error) {
	var tokenAddr, spender common.Address
	switch asset {
	case domain.AssetActionNFT:
		tokenAddr, spender = c.actionNFT, c.actionRepo
	case domain.AssetCarbonCredit:
		tokenAddr, spender = c.carbonCredit, c.marketplace
	default:
		return "", apperr.Validation("ledger.approve_allowance", "unknown asset "+string(asset))
	}
	receipt, err := c.transact(ctx, account, tokenAddr, token, "approve", spender, value)
	if err != nil {
		return "", err
	}
	return receipt.TxHash.Hex(), nil
}

// IsAssociated asks the carbon credit token whether account may hold it.
func (c *Client) IsAssociated(ctx context.Context, account string) (bool, error) {
	out, err := c.call(ctx, account, c.carbonCredit, hip719, "isAssociated")
	if err != nil {
		return false, err
	}
	ok, _ := out[0].(bool)
	return ok, nil
}

// Associate links account to the carbon credit token. An account that is already associated is
// a success with an empty tx reference.
func (c *Client) Associate(ctx context.Context, account string) (string, error) {
	receipt, err := c.transact(ctx, account, c.carbonCredit, hip719, "associate")
	if isAlreadyAssociated(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return receipt.TxHash.Hex(), nil
}

// BalanceOf is the live carbon credit balance; the mirror never answers this.
func (c *Client) BalanceOf(ctx context.Context, account string) (fixedpoint.Amount, error) {
	if !common.IsHexAddress(account) {
		return fixedpoint.Zero(), apperr.Validation("ledger.balanceOf", "invalid account address")
	}
	out, err := c.call(ctx, "", c.carbonCredit, token, "balanceOf", common.HexToAddress(account))
	if err != nil {
		return fixedpoint.Zero(), err
	}
	bal, ok := out[0].(*big.Int)
	if !ok {
		return fixedpoint.Zero(), apperr.New(apperr.KindInternal, "ledger.balanceOf", "unexpected balance value")
	}
	return fixedpoint.FromBig(bal), nil
}

// ListTokens opens a marketplace listing and returns the ledger listing id from the TokensListed log.
func (c *Client) ListTokens(ctx context.Context, account string, amount, totalPrice fixedpoint.Amount, expiresIn time.Duration) (domain.ListingReceipt, error) {
	const op = "ledger.listTokens"
	secs := big.NewInt(int64(expiresIn / time.Second))
	receipt, err := c.transact(ctx, account, c.marketplace, marketplace, "listTokens", amount.BigInt(), totalPrice.BigInt(), secs)
	if err != nil {
		return domain.ListingReceipt{}, err
	}
	txRef := receipt.TxHash.Hex()
	listedID := marketplace.Events["TokensListed"].ID
	for _, l := range receipt.Logs {
		if l.Address == c.marketplace && len(l.Topics) >= 2 && l.Topics[0] == listedID {
			id := new(big.Int).SetBytes(l.Topics[1].Bytes())
			if id.IsUint64() {
				return domain.ListingReceipt{TxRef: txRef, LedgerListingID: id.Uint64()}, nil
			}
		}
	}
	return domain.ListingReceipt{}, apperr.New(apperr.KindMirrorWriteFailed, op, "receipt has no TokensListed log").WithTxRef(txRef)
}

func (c *Client) CancelListing(ctx context.Context, account string, ledgerListingID uint64) (string, error) {
	receipt, err := c.transact(ctx, account, c.marketplace, marketplace, "cancelListing", new(big.Int).SetUint64(ledgerListingID))
	if err != nil {
		return "", err
	}
	return receipt.TxHash.Hex(), nil
}
