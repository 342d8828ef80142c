package sigverify

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Layr-Labs/multiswap-go/pkg/types"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

/*
Withdrawal Signature Scheme

An off-chain signer authorizes a payout by signing the canonical JSON form of
a WithdrawSignMessage with the Ethereum personal-sign convention:

  text     = {"chain_id":"..","payee":"..","token":"..","amount":"<decimal>","salt":".."}
  prefixed = "\x19Ethereum Signed Message:\n" || len(text) as ASCII decimal || text
  digest   = keccak256(prefixed)
  sig      = r || s || v    (65 bytes, hex encoded, v in {27, 28})

Verification recovers the uncompressed secp256k1 public key from (digest, r||s, v-27)
and derives the signer address as the last 20 bytes of keccak256(X||Y),
rendered as lower-case hex with a 0x prefix and no checksum casing.

Field order and the string form of amount are part of the wire contract with
the signer and must not change. Strings use minimal escaping: quote, backslash
and control characters only. encoding/json also escapes <, >, &, U+2028 and
U+2029, so the text is written by hand.
*/

const (
	// PersonalSignPrefix is prepended to every signed message.
	PersonalSignPrefix = "\x19Ethereum Signed Message:\n"

	// SignatureLength is r (32) + s (32) + v (1).
	SignatureLength = 65

	// UncompressedPubkeyLength is the 0x04 marker followed by X and Y.
	UncompressedPubkeyLength = 65

	recoveryOffset = 27
)

// ErrMalformedSignature covers undecodable hex, wrong length, an invalid
// recovery byte and failed public key recovery.
var ErrMalformedSignature = errors.New("malformed signature")

// Crypto is the hashing and recovery capability supplied by the execution
// environment. Implementations must not panic on any input.
type Crypto interface {
	// Keccak256 hashes the concatenation of data.
	Keccak256(data ...[]byte) []byte

	// RecoverPubkey returns the 65-byte uncompressed public key that produced
	// the 64-byte signature r||s over digest.
	RecoverPubkey(digest, sig []byte, recoveryID byte) ([]byte, error)
}

// WithdrawSignMessage is the structure signed off-chain to authorize a
// withdrawal. It is never persisted.
type WithdrawSignMessage struct {
	ChainID string        `json:"chain_id"`
	Payee   string        `json:"payee"`
	Token   string        `json:"token"`
	Amount  types.Uint128 `json:"amount"`
	Salt    string        `json:"salt"`
}

// CanonicalJSON returns the exact bytes that are hashed and signed.
func (m WithdrawSignMessage) CanonicalJSON() []byte {
	var b strings.Builder
	b.WriteString(`{"chain_id":`)
	writeJSONString(&b, m.ChainID)
	b.WriteString(`,"payee":`)
	writeJSONString(&b, m.Payee)
	b.WriteString(`,"token":`)
	writeJSONString(&b, m.Token)
	b.WriteString(`,"amount":`)
	writeJSONString(&b, m.Amount.String())
	b.WriteString(`,"salt":`)
	writeJSONString(&b, m.Salt)
	b.WriteByte('}')
	return []byte(b.String())
}

const hexDigits = "0123456789abcdef"

func writeJSONString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if c < 0x20 {
				b.WriteString(`\u00`)
				b.WriteByte(hexDigits[c>>4])
				b.WriteByte(hexDigits[c&0xf])
				continue
			}
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
}

// PersonalSignDigest returns keccak256 of the personal-sign wrapped message.
func PersonalSignDigest(c Crypto, message []byte) []byte {
	return c.Keccak256(
		[]byte(PersonalSignPrefix),
		[]byte(strconv.Itoa(len(message))),
		message,
	)
}

// DecodeSignature parses a hex signature (0x prefix optional) into r||s and
// the recovery id.
func DecodeSignature(signature string) ([]byte, byte, error) {
	raw, err := hexutil.Decode("0x" + strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: invalid hex: %v", ErrMalformedSignature, err)
	}
	if len(raw) != SignatureLength {
		return nil, 0, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedSignature, SignatureLength, len(raw))
	}

	v := raw[SignatureLength-1]
	if v != recoveryOffset && v != recoveryOffset+1 {
		return nil, 0, fmt.Errorf("%w: invalid recovery byte %d", ErrMalformedSignature, v)
	}
	return raw[:SignatureLength-1], v - recoveryOffset, nil
}

// PubkeyToAddress derives the lower-case 0x address of an uncompressed public key.
func PubkeyToAddress(c Crypto, pubkey []byte) (string, error) {
	if len(pubkey) != UncompressedPubkeyLength {
		return "", fmt.Errorf("%w: public key must be %d bytes, got %d", ErrMalformedSignature, UncompressedPubkeyLength, len(pubkey))
	}
	if pubkey[0] != 0x04 {
		return "", fmt.Errorf("%w: public key is not uncompressed", ErrMalformedSignature)
	}

	hash := c.Keccak256(pubkey[1:])
	return hexutil.Encode(hash[len(hash)-20:]), nil
}

// RecoverSigner returns the address that signed msg. It does not consult any
// signer registry.
func RecoverSigner(c Crypto, msg WithdrawSignMessage, signature string) (string, error) {
	return RecoverMessageSigner(c, msg.CanonicalJSON(), signature)
}

// RecoverMessageSigner returns the address that personal-signed message.
func RecoverMessageSigner(c Crypto, message []byte, signature string) (string, error) {
	sig, recoveryID, err := DecodeSignature(signature)
	if err != nil {
		return "", err
	}

	digest := PersonalSignDigest(c, message)

	pubkey, err := c.RecoverPubkey(digest, sig, recoveryID)
	if err != nil {
		return "", fmt.Errorf("%w: recovery failed: %v", ErrMalformedSignature, err)
	}

	return PubkeyToAddress(c, pubkey)
}
