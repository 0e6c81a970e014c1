package ledger

import (
	"context"
	"errors"
	"io"
	"math/big"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Backend is the slice of JSON-RPC the client needs. *RPCClient implements it over a pool of
// relay endpoints; tests substitute an in-memory chain.
type Backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// RPCClient round-robins over several relay endpoints and fails over on transport errors only.
// A node that answers with a semantic error (revert, nonce, funds) is not retried elsewhere.
type RPCClient struct {
	mu      sync.RWMutex
	clients []*ethclient.Client
	next    uint64
	logger  zerolog.Logger
}

// DialRPC connects to every url and keeps the ones serving expectedChainID. Endpoints that cannot
// report a chain id are kept; endpoints reporting a different one are dropped.
func DialRPC(ctx context.Context, urls []string, expectedChainID int64, logger zerolog.Logger) (*RPCClient, error) {
	if len(urls) == 0 {
		return nil, pkgerrors.New("no ledger RPC urls configured")
	}
	log := logger.With().Str("component", "ledger_rpc").Logger()

	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clients := make([]*ethclient.Client, 0, len(urls))
	for _, url := range urls {
		c, err := ethclient.DialContext(dialCtx, url)
		if err != nil {
			log.Warn().Err(err).Str("url", url).Msg("ledger endpoint unreachable, skipping")
			continue
		}
		id, err := c.ChainID(dialCtx)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("url", url).Msg("could not verify chain id, keeping endpoint")
		case id.Int64() != expectedChainID:
			log.Warn().Str("url", url).Int64("expected", expectedChainID).Int64("actual", id.Int64()).
				Msg("chain id mismatch, dropping endpoint")
			c.Close()
			continue
		}
		clients = append(clients, c)
		log.Info().Str("url", url).Msg("ledger endpoint connected")
	}
	if len(clients) == 0 {
		return nil, pkgerrors.New("no usable ledger RPC endpoint")
	}
	return &RPCClient{clients: clients, logger: log}, nil
}

func (rc *RPCClient) do(ctx context.Context, op string, fn func(*ethclient.Client) error) error {
	rc.mu.RLock()
	clients := rc.clients
	rc.mu.RUnlock()
	if len(clients) == 0 {
		return pkgerrors.Errorf("%s: ledger rpc pool is closed", op)
	}

	var last error
	for attempt := 0; attempt < len(clients); attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		c := clients[(atomic.AddUint64(&rc.next, 1)-1)%uint64(len(clients))]
		last = fn(c)
		if last == nil || !isTransportError(last) {
			return last
		}
		rc.logger.Warn().Err(last).Str("op", op).Int("attempt", attempt+1).Msg("ledger endpoint failed, trying next")
	}
	return pkgerrors.Wrapf(last, "%s failed on all %d endpoints", op, len(clients))
}

func isTransportError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection reset", "no such host", "timeout", "502 bad gateway", "503 service unavailable", "504 gateway"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (rc *RPCClient) BlockNumber(ctx context.Context) (n uint64, err error) {
	err = rc.do(ctx, "eth_blockNumber", func(c *ethclient.Client) (e error) {
		n, e = c.BlockNumber(ctx)
		return e
	})
	return n, err
}

func (rc *RPCClient) PendingNonceAt(ctx context.Context, account common.Address) (n uint64, err error) {
	err = rc.do(ctx, "eth_getTransactionCount", func(c *ethclient.Client) (e error) {
		n, e = c.PendingNonceAt(ctx, account)
		return e
	})
	return n, err
}

func (rc *RPCClient) SuggestGasPrice(ctx context.Context) (p *big.Int, err error) {
	err = rc.do(ctx, "eth_gasPrice", func(c *ethclient.Client) (e error) {
		p, e = c.SuggestGasPrice(ctx)
		return e
	})
	return p, err
}

func (rc *RPCClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (g uint64, err error) {
	err = rc.do(ctx, "eth_estimateGas", func(c *ethclient.Client) (e error) {
		g, e = c.EstimateGas(ctx, msg)
		return e
	})
	return g, err
}

func (rc *RPCClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return rc.do(ctx, "eth_sendRawTransaction", func(c *ethclient.Client) error {
		return c.SendTransaction(ctx, tx)
	})
}

func (rc *RPCClient) TransactionReceipt(ctx context.Context, hash common.Hash) (r *types.Receipt, err error) {
	err = rc.do(ctx, "eth_getTransactionReceipt", func(c *ethclient.Client) (e error) {
		r, e = c.TransactionReceipt(ctx, hash)
		return e
	})
	return r, err
}

func (rc *RPCClient) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) (out []byte, err error) {
	err = rc.do(ctx, "eth_call", func(c *ethclient.Client) (e error) {
		out, e = c.CallContract(ctx, msg, block)
		return e
	})
	return out, err
}

func (rc *RPCClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) (logs []types.Log, err error) {
	err = rc.do(ctx, "eth_getLogs", func(c *ethclient.Client) (e error) {
		logs, e = c.FilterLogs(ctx, q)
		return e
	})
	return logs, err
}

// Close releases every endpoint.
func (rc *RPCClient) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for _, c := range rc.clients {
		c.Close()
	}
	rc.clients = nil
}
