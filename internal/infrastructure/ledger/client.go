package ledger

import (
	"context"
	"errors"
	"math/big"
	"time"

	"ecofusion-backend/internal/infrastructure/wallet"
	"ecofusion-backend/internal/pkg/apperr"
	"ecofusion-backend/internal/pkg/metrics"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultConfirmTimeout = 60 * time.Second
	defaultPollInterval   = 2 * time.Second
	gasHeadroomDivisor    = 5 // +20% over the estimate
)

// Signer produces a 65-byte signature over req.SigningHash on behalf of req.Account.
type Signer interface {
	Sign(ctx context.Context, req wallet.Request) ([]byte, error)
}

type Config struct {
	ChainID           int64
	ActionRepository  string
	ActionNFT         string
	CarbonCreditToken string
	Marketplace       string
	ConfirmTimeout    time.Duration
	PollInterval      time.Duration
}

// Client builds contract calls, has them signed by the account holder, broadcasts them and waits
// for a receipt. It never decides an outcome on its own; the receipt does.
type Client struct {
	backend        Backend
	signer         Signer
	chainID        *big.Int
	actionRepo     common.Address
	actionNFT      common.Address
	carbonCredit   common.Address
	marketplace    common.Address
	confirmTimeout time.Duration
	pollInterval   time.Duration
	logger         zerolog.Logger
}

func NewClient(backend Backend, signer Signer, cfg Config, logger zerolog.Logger) (*Client, error) {
	if backend == nil {
		return nil, errors.New("ledger backend is required")
	}
	if cfg.ChainID <= 0 {
		return nil, errors.New("ledger chain id is required")
	}
	addrs := map[string]string{
		"action repository":   cfg.ActionRepository,
		"action nft":          cfg.ActionNFT,
		"carbon credit token": cfg.CarbonCreditToken,
		"marketplace":         cfg.Marketplace,
	}
	for name, a := range addrs {
		if !common.IsHexAddress(a) {
			return nil, errors.New("invalid " + name + " address: " + a)
		}
	}
	c := &Client{
		backend:        backend,
		signer:         signer,
		chainID:        big.NewInt(cfg.ChainID),
		actionRepo:     common.HexToAddress(cfg.ActionRepository),
		actionNFT:      common.HexToAddress(cfg.ActionNFT),
		carbonCredit:   common.HexToAddress(cfg.CarbonCreditToken),
		marketplace:    common.HexToAddress(cfg.Marketplace),
		confirmTimeout: cfg.ConfirmTimeout,
		pollInterval:   cfg.PollInterval,
		logger:         logger.With().Str("component", "ledger_client").Logger(),
	}
	if c.confirmTimeout <= 0 {
		c.confirmTimeout = defaultConfirmTimeout
	}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	return c, nil
}

// WithSigner returns a copy of the client that signs with s.
func (c *Client) WithSigner(s Signer) *Client {
	cp := *c
	cp.signer = s
	return &cp
}

// Ping reports whether any endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.backend.BlockNumber(ctx)
	return err
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return 0, classify("ledger.block_number", err)
	}
	return n, nil
}

// transact runs one state-changing call end to end: nonce, gas, wallet signature, broadcast and
// receipt. A reverted receipt is ContractReverted; no receipt within the confirm timeout is
// LedgerUnconfirmed carrying the tx reference.
func (c *Client) transact(ctx context.Context, account string, to common.Address, contract abi.ABI, method string, args ...interface{}) (receipt *types.Receipt, err error) {
	op := "ledger." + method
	defer func() { metrics.ObserveLedger(method, err) }()

	if c.signer == nil {
		return nil, apperr.New(apperr.KindSigningFailed, op, "no signer configured")
	}
	if !common.IsHexAddress(account) {
		return nil, apperr.Validation(op, "invalid account address")
	}
	from := common.HexToAddress(account)

	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}

	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, classify(op, err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, classify(op, err)
	}
	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, GasPrice: gasPrice, Data: data})
	if err != nil {
		return nil, classify(op, err)
	}
	gas += gas / gasHeadroomDivisor

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gas, gasPrice, data)
	eip155 := types.NewEIP155Signer(c.chainID)
	hash := eip155.Hash(tx)

	sig, err := c.signer.Sign(ctx, wallet.Request{
		ID:          uuid.New().String(),
		Account:     from.Hex(),
		ChainID:     c.chainID.Int64(),
		To:          to.Hex(),
		Method:      method,
		Data:        hexutil.Encode(data),
		Nonce:       nonce,
		GasLimit:    gas,
		GasPrice:    gasPrice.String(),
		SigningHash: hash.Hex(),
	})
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.KindSigningFailed, op, "wallet signing failed", err)
	}

	if len(sig) != crypto.SignatureLength {
		return nil, apperr.New(apperr.KindSigningFailed, op, "signature must be 65 bytes")
	}
	if sig[64] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[64] -= 27
	}
	signed, err := tx.WithSignature(eip155, sig)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindSigningFailed, op, "malformed signature", err)
	}
	sender, err := types.Sender(eip155, signed)
	if err != nil || sender != from {
		return nil, apperr.New(apperr.KindSigningFailed, op, "signature does not recover to "+from.Hex())
	}

	txRef := signed.Hash().Hex()
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, classify(op, err).WithTxRef(txRef)
	}
	c.logger.Info().Str("method", method).Str("account", from.Hex()).Str("tx_ref", txRef).Msg("transaction broadcast")

	receipt, err = c.waitReceipt(ctx, op, signed.Hash())
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, apperr.New(apperr.KindContractReverted, op, "transaction reverted").WithTxRef(txRef)
	}
	return receipt, nil
}

func (c *Client) waitReceipt(ctx context.Context, op string, hash common.Hash) (*types.Receipt, error) {
	wctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(wctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			c.logger.Debug().Err(err).Str("tx_ref", hash.Hex()).Msg("receipt poll failed")
		}
		select {
		case <-wctx.Done():
			return nil, apperr.New(apperr.KindLedgerUnconfirmed, op, "no receipt before confirm timeout").WithTxRef(hash.Hex())
		case <-ticker.C:
		}
	}
}

// call runs a view function as account (zero address when empty).
func (c *Client) call(ctx context.Context, account string, to common.Address, contract abi.ABI, method string, args ...interface{}) (out []interface{}, err error) {
	op := "ledger." + method
	defer func() { metrics.ObserveLedger(method, err) }()

	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	if account != "" {
		msg.From = common.HexToAddress(account)
	}
	raw, err := c.backend.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, classify(op, err)
	}
	out, err = contract.Unpack(method, raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, "decode "+method+" result", err)
	}
	return out, nil
}
