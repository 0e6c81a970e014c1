package ledger

import (
	"context"
	"math/big"
	"time"

	"ecofusion-backend/internal/domain"
	"ecofusion-backend/internal/pkg/apperr"
	"ecofusion-backend/internal/pkg/fixedpoint"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// maxLogRange keeps eth_getLogs inside what JSON-RPC relays accept per request.
const maxLogRange = 1000

func (c *Client) scan(ctx context.Context, op string, addr common.Address, event abi.Event, from, to uint64) ([]types.Log, error) {
	var out []types.Log
	for start := from; start <= to; start += maxLogRange {
		end := start + maxLogRange - 1
		if end > to {
			end = to
		}
		logs, err := c.backend.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(start),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: []common.Address{addr},
			Topics:    [][]common.Hash{{event.ID}},
		})
		if err != nil {
			return nil, classify(op, err)
		}
		for _, l := range logs {
			if !l.Removed {
				out = append(out, l)
			}
		}
	}
	return out, nil
}

func topicUint(h common.Hash) (uint64, bool) {
	n := new(big.Int).SetBytes(h.Bytes())
	return n.Uint64(), n.IsUint64()
}

func topicAddress(h common.Hash) string {
	return common.BytesToAddress(h.Bytes()).Hex()
}

// ScanActionSubmitted returns ActionSubmitted events in [from, to].
func (c *Client) ScanActionSubmitted(ctx context.Context, from, to uint64) ([]domain.ActionSubmittedEvent, error) {
	const op = "ledger.scan_action_submitted"
	ev := actionRepository.Events["ActionSubmitted"]
	logs, err := c.scan(ctx, op, c.actionRepo, ev, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ActionSubmittedEvent, 0, len(logs))
	for _, l := range logs {
		if len(l.Topics) != 3 {
			continue
		}
		id, ok := topicUint(l.Topics[1])
		if !ok {
			continue
		}
		fields, err := actionRepository.Unpack(ev.Name, l.Data)
		if err != nil || len(fields) != 1 {
			return nil, apperr.Wrap(apperr.KindInternal, op, "decode ActionSubmitted", err)
		}
		uri, _ := fields[0].(string)
		out = append(out, domain.ActionSubmittedEvent{
			LedgerActionID: id,
			Owner:          topicAddress(l.Topics[2]),
			MetadataURI:    uri,
			TxRef:          l.TxHash.Hex(),
			BlockNumber:    l.BlockNumber,
		})
	}
	return out, nil
}

// ScanListed returns TokensListed events in [from, to].
func (c *Client) ScanListed(ctx context.Context, from, to uint64) ([]domain.ListedEvent, error) {
	const op = "ledger.scan_tokens_listed"
	ev := marketplace.Events["TokensListed"]
	logs, err := c.scan(ctx, op, c.marketplace, ev, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ListedEvent, 0, len(logs))
	for _, l := range logs {
		if len(l.Topics) != 3 {
			continue
		}
		id, ok := topicUint(l.Topics[1])
		if !ok {
			continue
		}
		fields, err := marketplace.Unpack(ev.Name, l.Data)
		if err != nil || len(fields) != 3 {
			return nil, apperr.Wrap(apperr.KindInternal, op, "decode TokensListed", err)
		}
		amount, _ := fields[0].(*big.Int)
		total, _ := fields[1].(*big.Int)
		expires, _ := fields[2].(*big.Int)
		if amount == nil || total == nil || expires == nil {
			return nil, apperr.New(apperr.KindInternal, op, "TokensListed has unexpected field types")
		}
		out = append(out, domain.ListedEvent{
			LedgerListingID: id,
			Seller:          topicAddress(l.Topics[2]),
			Amount:          fixedpoint.FromBig(amount),
			TotalPrice:      fixedpoint.FromBig(total),
			ExpiresAt:       time.Unix(expires.Int64(), 0).UTC(),
			TxRef:           l.TxHash.Hex(),
			BlockNumber:     l.BlockNumber,
		})
	}
	return out, nil
}

// ScanFills returns ListingFilled events in [from, to].
func (c *Client) ScanFills(ctx context.Context, from, to uint64) ([]domain.FillEvent, error) {
	const op = "ledger.scan_listing_filled"
	ev := marketplace.Events["ListingFilled"]
	logs, err := c.scan(ctx, op, c.marketplace, ev, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]domain.FillEvent, 0, len(logs))
	for _, l := range logs {
		if len(l.Topics) != 4 {
			continue
		}
		id, ok := topicUint(l.Topics[1])
		if !ok {
			continue
		}
		fields, err := marketplace.Unpack(ev.Name, l.Data)
		if err != nil || len(fields) != 2 {
			return nil, apperr.Wrap(apperr.KindInternal, op, "decode ListingFilled", err)
		}
		amount, _ := fields[0].(*big.Int)
		total, _ := fields[1].(*big.Int)
		if amount == nil || total == nil {
			return nil, apperr.New(apperr.KindInternal, op, "ListingFilled has unexpected field types")
		}
		out = append(out, domain.FillEvent{
			TxRef:           l.TxHash.Hex(),
			LedgerListingID: id,
			Buyer:           topicAddress(l.Topics[2]),
			Seller:          topicAddress(l.Topics[3]),
			Amount:          fixedpoint.FromBig(amount),
			TotalPrice:      fixedpoint.FromBig(total),
			BlockNumber:     l.BlockNumber,
		})
	}
	return out, nil
}
