package ledger

import (
	"context"
	"math/big"
	"sort"

	"ecofusion-backend/internal/domain"
	"ecofusion-backend/internal/pkg/apperr"
	"ecofusion-backend/internal/pkg/fixedpoint"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// SubmitAction registers a claim for account and returns the tx reference. The receipt carries no
// action id; callers read it back through ActionCounter.
func (c *Client) SubmitAction(ctx context.Context, account, metadataURI string) (string, error) {
	receipt, err := c.transact(ctx, account, c.actionRepo, actionRepository, "submitAction", metadataURI)
	if err != nil {
		return "", err
	}
	return receipt.TxHash.Hex(), nil
}

// ActionCounter is the id of the most recently submitted action.
func (c *Client) ActionCounter(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, "", c.actionRepo, actionRepository, "actionCounter")
	if err != nil {
		return 0, err
	}
	n, ok := out[0].(*big.Int)
	if !ok || !n.IsUint64() {
		return 0, apperr.New(apperr.KindInternal, "ledger.actionCounter", "unexpected counter value")
	}
	return n.Uint64(), nil
}

// GetAction reads the canonical state of one action.
func (c *Client) GetAction(ctx context.Context, id uint64) (domain.OnChainAction, error) {
	const op = "ledger.getAction"
	out, err := c.call(ctx, "", c.actionRepo, actionRepository, "getAction", int64(id))
	if err != nil {
		return domain.OnChainAction{}, err
	}
	if len(out) != 5 {
		return domain.OnChainAction{}, apperr.New(apperr.KindInternal, op, "unexpected getAction result")
	}
	owner, ok1 := out[0].(common.Address)
	status, ok2 := out[1].(uint8)
	amount, ok3 := out[2].(int64)
	serial, ok4 := out[3].(int64)
	uri, ok5 := out[4].(string)
	if !(ok1 && ok2 && ok3 && ok4 && ok5) {
		return domain.OnChainAction{}, apperr.New(apperr.KindInternal, op, "unexpected getAction field types")
	}
	if owner == (common.Address{}) {
		return domain.OnChainAction{}, apperr.NotFound(op, "action not on ledger")
	}
	return domain.OnChainAction{
		ID:          id,
		Owner:       owner.Hex(),
		State:       domain.LedgerActionState(status),
		TokenAmount: fixedpoint.FromUnitsInt64(amount),
		Serial:      serial,
		MetadataURI: uri,
	}, nil
}

// ApproveAction mints amount for the action. Serials come from the NFT mint logs in the receipt,
// falling back to latestSerialNumber when the relay omits them.
func (c *Client) ApproveAction(ctx context.Context, account string, id uint64, amount fixedpoint.Amount) (domain.MintReceipt, error) {
	units, ok := amount.Int64Units()
	if !ok {
		return domain.MintReceipt{}, apperr.Validation("ledger.approve", "token amount out of range")
	}
	receipt, err := c.transact(ctx, account, c.actionRepo, actionRepository, "approve", int64(id), units)
	if err != nil {
		return domain.MintReceipt{}, err
	}
	mint := domain.MintReceipt{TxRef: receipt.TxHash.Hex(), Serials: c.mintedSerials(receipt)}
	if len(mint.Serials) == 0 {
		serial, err := c.LatestSerialNumber(ctx)
		if err != nil {
			return domain.MintReceipt{}, apperr.Wrap(apperr.KindMirrorWriteFailed, "ledger.approve", "read minted serial", err).WithTxRef(mint.TxRef)
		}
		mint.Serials = []int64{serial}
	}
	return mint, nil
}

func (c *Client) mintedSerials(receipt *types.Receipt) []int64 {
	transferID := token.Events["Transfer"].ID
	var serials []int64
	for _, l := range receipt.Logs {
		if l.Address != c.actionNFT || len(l.Topics) != 4 || l.Topics[0] != transferID {
			continue
		}
		if common.BytesToAddress(l.Topics[1].Bytes()) != (common.Address{}) {
			continue
		}
		serial := new(big.Int).SetBytes(l.Topics[3].Bytes())
		if serial.IsInt64() {
			serials = append(serials, serial.Int64())
		}
	}
	sort.Slice(serials, func(i, j int) bool { return serials[i] < serials[j] })
	return serials
}

func (c *Client) RejectAction(ctx context.Context, account string, id uint64) (string, error) {
	receipt, err := c.transact(ctx, account, c.actionRepo, actionRepository, "reject", int64(id))
	if err != nil {
		return "", err
	}
	return receipt.TxHash.Hex(), nil
}

// RedeemAction burns the action NFT with the given serial for carbon credit tokens.
func (c *Client) RedeemAction(ctx context.Context, account string, serial int64) (string, error) {
	receipt, err := c.transact(ctx, account, c.actionRepo, actionRepository, "reedemAction", serial)
	if err != nil {
		return "", err
	}
	return receipt.TxHash.Hex(), nil
}

func (c *Client) LatestSerialNumber(ctx context.Context) (int64, error) {
	out, err := c.call(ctx, "", c.actionRepo, actionRepository, "latestSerialNumber")
	if err != nil {
		return 0, err
	}
	serial, ok := out[0].(int64)
	if !ok {
		return 0, apperr.New(apperr.KindInternal, "ledger.latestSerialNumber", "unexpected serial value")
	}
	return serial, nil
}
