package sigverify

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

// Secp256k1 is the production Crypto capability.
type Secp256k1 struct{}

var _ Crypto = Secp256k1{}

func (Secp256k1) Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

func (Secp256k1) RecoverPubkey(digest, sig []byte, recoveryID byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}
	if len(sig) != 64 {
		return nil, fmt.Errorf("signature must be 64 bytes, got %d", len(sig))
	}
	if recoveryID > 1 {
		return nil, fmt.Errorf("invalid recovery id %d", recoveryID)
	}

	full := make([]byte, 65)
	copy(full, sig)
	full[64] = recoveryID
	return crypto.Ecrecover(digest, full)
}
