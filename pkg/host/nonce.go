package host

import (
	"context"

	"github.com/Layr-Labs/multiswap-go/pkg/persistence"
	"github.com/Layr-Labs/multiswap-go/pkg/types"
	"github.com/pkg/errors"
)

var prefixNonces = []byte("host/nonces/")

func nonceKey(addr string) []byte {
	return append(append([]byte{}, prefixNonces...), addr...)
}

// Nonce returns the next nonce ExecuteWithNonce accepts from addr.
func (h *Host) Nonce(addr string) (uint64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return loadUint64(h.store, nonceKey(addr))
}

// ExecuteWithNonce runs msg like Execute for a sender that authenticated
// nonce. The nonce must equal the sender's stored nonce. Once it does, the
// nonce is consumed even if the call fails, so a signed request can never
// be replayed.
func (h *Host) ExecuteWithNonce(ctx context.Context, nonce uint64, contract, sender string, funds []types.Coin, msg []byte) (*Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := h.api.ValidateAddress(sender); err != nil {
		return nil, errors.Wrapf(ErrInvalidSender, "%v", err)
	}

	var callErr error
	res, err := h.commit(func(tx *persistence.Overlay, env types.Env, res *Result) error {
		key := nonceKey(sender)
		want, err := loadUint64(tx, key)
		if err != nil {
			return err
		}
		if nonce != want {
			return errors.Wrapf(ErrInvalidNonce, "sender %s: expected %d, got %d", sender, want, nonce)
		}
		if err := saveUint64(tx, key, want+1); err != nil {
			return err
		}

		res.Contract = contract
		call := persistence.NewOverlay(tx)
		if callErr = h.call(ctx, call, env, contract, sender, funds, msg, res, 0); callErr != nil {
			return nil
		}
		return call.Flush(tx)
	})
	if err != nil {
		return nil, err
	}
	if callErr != nil {
		h.logger.Sugar().Debugw("Consumed nonce of failed call", "sender", sender, "nonce", nonce, "error", callErr)
		return nil, callErr
	}
	return res, nil
}
