// Package wallet loads a Solana keypair and signs venue transactions. It is
// the thin signer adapter the plumbing test needs; key custody beyond a
// base58 environment secret is out of scope.
package wallet

import (
	"crypto/ed25519"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Wallet holds an ed25519 keypair.
type Wallet struct {
	priv   ed25519.PrivateKey
	pubkey string // base58
}

// Load decodes a base58 private key. Both 64-byte keypairs and 32-byte
// seeds are accepted.
func Load(privateKeyB58 string) (*Wallet, error) {
	raw, err := base58.Decode(privateKeyB58)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}

	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(raw)
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(raw)
	default:
		return nil, fmt.Errorf("private key must be %d or %d bytes, got %d",
			ed25519.PrivateKeySize, ed25519.SeedSize, len(raw))
	}

	pub := priv.Public().(ed25519.PublicKey)
	return &Wallet{
		priv:   priv,
		pubkey: base58.Encode(pub),
	}, nil
}

// Pubkey returns the wallet address in base58.
func (w *Wallet) Pubkey() string { return w.pubkey }

// Sign signs an unsigned venue transaction in place of its first signature
// slot and returns the result. Every byte except the injected signature is
// preserved.
//
// Wire layout: compact-u16 signature count, then count*64 signature bytes,
// then the message. The venue returns the transaction with the fee payer
// (the taker) as the first required signer and all signature slots zeroed.
func (w *Wallet) Sign(unsignedTx []byte, walletID string) ([]byte, error) {
	if walletID != "" && walletID != w.pubkey {
		return nil, fmt.Errorf("wallet %s cannot sign for %s", w.pubkey, walletID)
	}

	numSigs, offset, err := decodeCompactU16(unsignedTx)
	if err != nil {
		return nil, fmt.Errorf("parse signature count: %w", err)
	}
	if numSigs == 0 {
		return nil, fmt.Errorf("transaction declares zero signatures")
	}

	msgStart := offset + numSigs*ed25519.SignatureSize
	if msgStart >= len(unsignedTx) {
		return nil, fmt.Errorf("transaction truncated: %d bytes, message would start at %d",
			len(unsignedTx), msgStart)
	}

	signed := make([]byte, len(unsignedTx))
	copy(signed, unsignedTx)

	sig := ed25519.Sign(w.priv, unsignedTx[msgStart:])
	copy(signed[offset:offset+ed25519.SignatureSize], sig)

	return signed, nil
}

// SignatureOf returns the base58 rendering of the first signature in a
// signed transaction, which doubles as the transaction ID.
func SignatureOf(signedTx []byte) (string, error) {
	numSigs, offset, err := decodeCompactU16(signedTx)
	if err != nil || numSigs == 0 {
		return "", fmt.Errorf("no signatures present")
	}
	if offset+ed25519.SignatureSize > len(signedTx) {
		return "", fmt.Errorf("transaction truncated")
	}
	return base58.Encode(signedTx[offset : offset+ed25519.SignatureSize]), nil
}

// ValidAddress reports whether s is a base58-encoded point on the ed25519
// curve, i.e. a plausible wallet address (program-derived addresses are
// intentionally off-curve and rejected here).
func ValidAddress(s string) bool {
	raw, err := base58.Decode(s)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(raw)
	return err == nil
}

// decodeCompactU16 decodes Solana's compact-u16 length prefix, returning
// the value and the number of bytes consumed.
func decodeCompactU16(data []byte) (int, int, error) {
	value := 0
	for i := 0; i < 3; i++ {
		if i >= len(data) {
			return 0, 0, fmt.Errorf("truncated compact-u16")
		}
		b := int(data[i])
		value |= (b & 0x7f) << (7 * i)
		if b&0x80 == 0 {
			return value, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("compact-u16 too long")
}
