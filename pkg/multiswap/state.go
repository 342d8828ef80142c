package multiswap

import (
	"fmt"
	"strings"

	"github.com/Layr-Labs/multiswap-go/pkg/persistence"
)

// Storage layout inside the contract namespace.
var (
	keyOwner = []byte("owner")
	keyFee   = []byte("fee")

	signers       = presenceSet{prefix: []byte("signers/")}
	foundryAssets = presenceSet{prefix: []byte("foundry_assets/")}
	usedMessages  = presenceSet{prefix: []byte("used_messages/")}

	prefixLiquidity = []byte("liquidity/")
)

func loadOwner(store persistence.KVStore) (string, error) {
	owner, err := store.Get(keyOwner)
	if err != nil {
		return "", err
	}
	if owner == nil {
		return "", fmt.Errorf("%w: owner", ErrNotFound)
	}
	return string(owner), nil
}

func saveOwner(store persistence.KVStore, owner string) error {
	return store.Set(keyOwner, []byte(owner))
}

func loadFee(store persistence.KVStore) (*FeeConfig, error) {
	return persistence.LoadRecord[FeeConfig](store, keyFee)
}

func saveFee(store persistence.KVStore, fee *FeeConfig) error {
	return persistence.SaveRecord(store, keyFee, fee)
}

// presenceSet is an ordered set of strings where key presence is the datum.
type presenceSet struct {
	prefix []byte
}

func (s presenceSet) key(member string) []byte {
	k := make([]byte, 0, len(s.prefix)+len(member))
	k = append(k, s.prefix...)
	return append(k, member...)
}

func (s presenceSet) Has(store persistence.KVStore, member string) (bool, error) {
	v, err := store.Get(s.key(member))
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

func (s presenceSet) Add(store persistence.KVStore, member string) error {
	return store.Set(s.key(member), []byte(member))
}

func (s presenceSet) Remove(store persistence.KVStore, member string) error {
	return store.Delete(s.key(member))
}

// Page returns up to limit members in ascending order, strictly after startAfter.
func (s presenceSet) Page(store persistence.KVStore, startAfter *string, limit int) ([]string, error) {
	members := make([]string, 0)
	if limit <= 0 {
		return members, nil
	}

	start := s.prefix
	if startAfter != nil {
		start = exclusive(s.key(*startAfter))
	}

	err := store.Iterate(start, persistence.PrefixEnd(s.prefix), func(key, _ []byte) bool {
		members = append(members, string(key[len(s.prefix):]))
		return len(members) < limit
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

// exclusive returns the smallest key strictly greater than key.
func exclusive(key []byte) []byte {
	out := make([]byte, len(key)+1)
	copy(out, key)
	return out
}

// liquidityKey orders entries by (token, user). Denominations never contain
// NUL, so the separator sorts before any continuation of the token.
func liquidityKey(token, user string) []byte {
	k := make([]byte, 0, len(prefixLiquidity)+len(token)+1+len(user))
	k = append(k, prefixLiquidity...)
	k = append(k, token...)
	k = append(k, 0)
	return append(k, user...)
}

func loadLiquidity(store persistence.KVStore, token, user string) (*Liquidity, error) {
	return persistence.LoadRecord[Liquidity](store, liquidityKey(token, user))
}

func saveLiquidity(store persistence.KVStore, l *Liquidity) error {
	return persistence.SaveRecord(store, liquidityKey(l.Token, l.User), l)
}

func pageLiquidity(store persistence.KVStore, startAfter *LiquidityCursor, limit int) ([]Liquidity, error) {
	entries := make([]Liquidity, 0)
	if limit <= 0 {
		return entries, nil
	}

	start := prefixLiquidity
	if startAfter != nil {
		start = exclusive(liquidityKey(startAfter.Token(), startAfter.User()))
	}

	var decodeErr error
	err := store.Iterate(start, persistence.PrefixEnd(prefixLiquidity), func(key, value []byte) bool {
		l, err := persistence.UnmarshalRecord[Liquidity](value)
		if err != nil {
			decodeErr = fmt.Errorf("corrupt liquidity entry %q: %w", key, err)
			return false
		}
		entries = append(entries, *l)
		return len(entries) < limit
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return entries, nil
}

func validateDenom(token string) error {
	if token == "" {
		return fmt.Errorf("%w: empty", ErrInvalidDenom)
	}
	if strings.IndexByte(token, 0) >= 0 {
		return fmt.Errorf("%w: contains NUL", ErrInvalidDenom)
	}
	return nil
}
