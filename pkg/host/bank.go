package host

import (
	"fmt"
	"sort"

	"github.com/Layr-Labs/multiswap-go/pkg/persistence"
	"github.com/Layr-Labs/multiswap-go/pkg/types"
)

var prefixBalances = []byte("bank/balances/")

// bank keeps native coin balances in the host store.
type bank struct {
	store persistence.KVStore
}

func balanceKey(denom, addr string) []byte {
	k := make([]byte, 0, len(prefixBalances)+len(denom)+1+len(addr))
	k = append(k, prefixBalances...)
	k = append(k, denom...)
	k = append(k, 0)
	return append(k, addr...)
}

func (b bank) balance(addr, denom string) (types.Uint128, error) {
	raw, err := b.store.Get(balanceKey(denom, addr))
	if err != nil {
		return types.Uint128{}, err
	}
	if raw == nil {
		return types.Uint128{}, nil
	}
	return types.ParseUint128(string(raw))
}

func (b bank) setBalance(addr, denom string, amount types.Uint128) error {
	return b.store.Set(balanceKey(denom, addr), []byte(amount.String()))
}

func (b bank) mint(addr string, coin types.Coin) error {
	current, err := b.balance(addr, coin.Denom)
	if err != nil {
		return err
	}
	sum, err := current.CheckedAdd(coin.Amount)
	if err != nil {
		return fmt.Errorf("mint %s%s to %s: %w", coin.Amount, coin.Denom, addr, err)
	}
	return b.setBalance(addr, coin.Denom, sum)
}

func (b bank) send(from, to string, coins []types.Coin) error {
	for _, coin := range coins {
		fromBalance, err := b.balance(from, coin.Denom)
		if err != nil {
			return err
		}
		remaining, err := fromBalance.CheckedSub(coin.Amount)
		if err != nil {
			return fmt.Errorf("%w: %s has %s%s, needs %s%s", ErrInsufficientFunds, from, fromBalance, coin.Denom, coin.Amount, coin.Denom)
		}
		if err := b.setBalance(from, coin.Denom, remaining); err != nil {
			return err
		}
		if err := b.mint(to, coin); err != nil {
			return err
		}
	}
	return nil
}

// validateCoins rejects empty denominations, zero amounts and duplicates.
func validateCoins(coins []types.Coin) error {
	seen := make(map[string]struct{}, len(coins))
	for _, c := range coins {
		if c.Denom == "" {
			return fmt.Errorf("%w: empty denom", ErrInvalidCoins)
		}
		if c.Amount.IsZero() {
			return fmt.Errorf("%w: zero amount of %s", ErrInvalidCoins, c.Denom)
		}
		if _, dup := seen[c.Denom]; dup {
			return fmt.Errorf("%w: duplicate denom %s", ErrInvalidCoins, c.Denom)
		}
		seen[c.Denom] = struct{}{}
	}
	return nil
}

// sortCoins orders coins by denomination.
func sortCoins(coins []types.Coin) []types.Coin {
	out := append([]types.Coin(nil), coins...)
	sort.Slice(out, func(i, j int) bool { return out[i].Denom < out[j].Denom })
	return out
}
