package multiswap

import (
	"errors"

	"github.com/Layr-Labs/multiswap-go/pkg/multiswap/sigverify"
	"github.com/Layr-Labs/multiswap-go/pkg/types"
)

// Errors returned by Execute and Query. Callers match with errors.Is; the
// returned error usually wraps one of these with the offending value.
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFoundryAsset    = errors.New("not foundry asset")
	ErrInvalidDeposit     = errors.New("invalid deposit")
	ErrInvalidSigner      = errors.New("invalid signer")
	ErrUsedSalt           = errors.New("used salt")
	ErrNotFound           = errors.New("not found")
	ErrInvalidAddress     = errors.New("invalid address")
	ErrInvalidDenom       = errors.New("invalid denomination")
	ErrUnknownMessage     = errors.New("unknown message")
	ErrOverflow           = types.ErrOverflow
	ErrUnderflow          = types.ErrUnderflow
	ErrMalformedSignature = sigverify.ErrMalformedSignature
)
