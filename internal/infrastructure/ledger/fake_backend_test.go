package ledger

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// fakeBackend is an in-memory chain: sent transactions get a receipt built by onSend.
type fakeBackend struct {
	mu sync.Mutex

	nonce       uint64
	gasPrice    *big.Int
	estimate    uint64
	estimateErr error
	sendErr     error
	callErr     error

	// calls maps a 4-byte selector to the raw return data.
	calls map[[4]byte][]byte
	logs  []types.Log

	onSend   func(tx *types.Transaction) *types.Receipt
	sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt
	queries  []ethereum.FilterQuery
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		nonce:    7,
		gasPrice: big.NewInt(1_000_000_000),
		estimate: 100_000,
		calls:    map[[4]byte][]byte{},
		receipts: map[common.Hash]*types.Receipt{},
		onSend: func(tx *types.Transaction) *types.Receipt {
			return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: tx.Hash()}
		},
	}
}

// setCall packs outputs as the return data of contract.method.
func (f *fakeBackend) setCall(contract abi.ABI, method string, outputs ...interface{}) {
	m := contract.Methods[method]
	out, err := m.Outputs.Pack(outputs...)
	if err != nil {
		panic(err)
	}
	var sel [4]byte
	copy(sel[:], m.ID)
	f.calls[sel] = out
}

func (f *fakeBackend) BlockNumber(ctx context.Context) (uint64, error) { return 100, nil }

func (f *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) { return f.gasPrice, nil }

func (f *fakeBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return f.estimate, f.estimateErr
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	if r := f.onSend(tx); r != nil {
		f.receipts[tx.Hash()] = r
	}
	return nil
}

func (f *fakeBackend) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (f *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	if f.callErr != nil {
		return nil, f.callErr
	}
	var sel [4]byte
	copy(sel[:], msg.Data[:4])
	return f.calls[sel], nil
}

func (f *fakeBackend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	var out []types.Log
	for _, l := range f.logs {
		if l.BlockNumber >= q.FromBlock.Uint64() && l.BlockNumber <= q.ToBlock.Uint64() && l.Topics[0] == q.Topics[0][0] {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeBackend) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}
