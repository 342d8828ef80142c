// Package signer produces withdrawal approvals in the format verified by the
// settlement contract. It is the reference for off-chain relayers.
package signer

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/Layr-Labs/multiswap-go/pkg/multiswap/sigverify"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer holds a secp256k1 key and signs withdrawal messages.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    string
}

// New parses a hex encoded private key, with or without a 0x prefix.
func New(privateKeyHex string) (*Signer, error) {
	if privateKeyHex == "" {
		return nil, fmt.Errorf("private key cannot be empty")
	}
	pk, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return FromKey(pk), nil
}

// Generate creates a signer with a fresh random key.
func Generate() (*Signer, error) {
	pk, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return FromKey(pk), nil
}

// FromKey wraps an existing key.
func FromKey(pk *ecdsa.PrivateKey) *Signer {
	return &Signer{
		privateKey: pk,
		address:    strings.ToLower(crypto.PubkeyToAddress(pk.PublicKey).Hex()),
	}
}

// Address returns the lower-case 0x address that signature recovery yields.
func (s *Signer) Address() string {
	return s.address
}

// PrivateKeyHex returns the key as 0x-prefixed hex.
func (s *Signer) PrivateKeyHex() string {
	return hexutil.Encode(crypto.FromECDSA(s.privateKey))
}

// SignWithdrawal signs the personal-sign digest of the canonical message and
// returns r||s||v as hex without a 0x prefix, with v in {27, 28}.
func (s *Signer) SignWithdrawal(msg sigverify.WithdrawSignMessage) (string, error) {
	sig, err := s.SignMessage(msg.CanonicalJSON())
	if err != nil {
		return "", fmt.Errorf("failed to sign withdrawal: %w", err)
	}
	return sig, nil
}

// SignMessage personal-signs arbitrary bytes, such as a request body, in the
// same r||s||v hex form.
func (s *Signer) SignMessage(message []byte) (string, error) {
	digest := sigverify.PersonalSignDigest(sigverify.Secp256k1{}, message)
	sig, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return strings.TrimPrefix(hexutil.Encode(sig), "0x"), nil
}
