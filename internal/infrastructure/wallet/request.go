package wallet

import (
	"time"
)

// Request is an unsigned ledger transaction waiting for the account holder's signature.
// SigningHash is the EIP-155 hash the wallet signs; the other fields let the wallet
// show the user what is being authorised.
type Request struct {
	ID          string    `json:"id"`
	Account     string    `json:"account"`
	ChainID     int64     `json:"chain_id"`
	To          string    `json:"to"`
	Method      string    `json:"method"`
	Data        string    `json:"data"`
	Nonce       uint64    `json:"nonce"`
	GasLimit    uint64    `json:"gas_limit"`
	GasPrice    string    `json:"gas_price"`
	SigningHash string    `json:"signing_hash"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Response is the wallet's answer to a Request.
type Response struct {
	Approved  bool   `json:"approved"`
	Signature string `json:"signature,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// SignatureLength is an [R || S || V] secp256k1 signature with V in {0, 1}.
const SignatureLength = 65
