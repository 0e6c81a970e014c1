package wallet

import (
	"context"
	"crypto/ecdsa"
	"strings"

	"ecofusion-backend/internal/pkg/apperr"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeySigner signs with a locally held operator key. It backs the operator CLI only; user
// lifecycle calls always go through the account holder's wallet.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewKeySigner(hexKey string) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "wallet.key_signer", "invalid operator key", err)
	}
	return &KeySigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// Address is the account the key controls.
func (k *KeySigner) Address() string { return k.address.Hex() }

func (k *KeySigner) Sign(ctx context.Context, req Request) ([]byte, error) {
	const op = "wallet.key_sign"
	if !strings.EqualFold(req.Account, k.address.Hex()) {
		return nil, apperr.New(apperr.KindSigningFailed, op, "operator key does not control "+req.Account)
	}
	hash, err := hexutil.Decode(req.SigningHash)
	if err != nil || len(hash) != 32 {
		return nil, apperr.New(apperr.KindSigningFailed, op, "signing hash must be 32 bytes")
	}
	sig, err := crypto.Sign(hash, k.key)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindSigningFailed, op, "sign", err)
	}
	return sig, nil
}
