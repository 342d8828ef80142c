package host

import "errors"

var (
	ErrUnknownContract    = errors.New("unknown contract")
	ErrUnknownCode        = errors.New("unknown code")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidCoins       = errors.New("invalid coins")
	ErrInvalidSender      = errors.New("invalid sender")
	ErrCallDepthExceeded  = errors.New("call depth exceeded")
	ErrInvalidInstruction = errors.New("invalid instruction")
	ErrInvalidNonce       = errors.New("invalid nonce")
)
