package types

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

var (
	// ErrOverflow is returned when an addition exceeds 128 bits.
	ErrOverflow = errors.New("uint128 overflow")
	// ErrUnderflow is returned when a subtraction would go below zero.
	ErrUnderflow = errors.New("uint128 underflow")
)

// Uint128 is an unsigned 128-bit amount. It serializes to JSON as a decimal
// string so values above 2^53 survive JavaScript clients.
type Uint128 struct {
	v uint256.Int
}

// NewUint128 returns x as a Uint128.
func NewUint128(x uint64) Uint128 {
	var u Uint128
	u.v.SetUint64(x)
	return u
}

// ParseUint128 parses a base-10 string. Signs, whitespace and hex are rejected.
func ParseUint128(s string) (Uint128, error) {
	var u Uint128
	if s == "" {
		return u, fmt.Errorf("invalid uint128: empty string")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return u, fmt.Errorf("invalid uint128 %q: non-digit character", s)
		}
	}
	if err := u.v.SetFromDecimal(s); err != nil {
		return u, fmt.Errorf("invalid uint128 %q: %w", s, err)
	}
	if u.v.BitLen() > 128 {
		return Uint128{}, fmt.Errorf("invalid uint128 %q: %w", s, ErrOverflow)
	}
	return u, nil
}

// MustParseUint128 is ParseUint128 for constants in tests and fixtures.
func MustParseUint128(s string) Uint128 {
	u, err := ParseUint128(s)
	if err != nil {
		panic(err)
	}
	return u
}

// MaxUint128 returns 2^128 - 1.
func MaxUint128() Uint128 {
	var u Uint128
	u.v.SetAllOne()
	u.v.Rsh(&u.v, 128)
	return u
}

func (u Uint128) String() string {
	return u.v.Dec()
}

func (u Uint128) IsZero() bool {
	return u.v.IsZero()
}

// Cmp returns -1, 0 or +1.
func (u Uint128) Cmp(o Uint128) int {
	return u.v.Cmp(&o.v)
}

func (u Uint128) Equal(o Uint128) bool {
	return u.v.Eq(&o.v)
}

// CheckedAdd returns u+o or ErrOverflow when the sum does not fit in 128 bits.
func (u Uint128) CheckedAdd(o Uint128) (Uint128, error) {
	var out Uint128
	out.v.Add(&u.v, &o.v)
	if out.v.BitLen() > 128 {
		return Uint128{}, ErrOverflow
	}
	return out, nil
}

// CheckedSub returns u-o or ErrUnderflow when o > u.
func (u Uint128) CheckedSub(o Uint128) (Uint128, error) {
	var out Uint128
	if _, underflow := out.v.SubOverflow(&u.v, &o.v); underflow {
		return Uint128{}, ErrUnderflow
	}
	return out, nil
}

func (u Uint128) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

func (u *Uint128) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("uint128 must be a decimal string: %w", err)
	}
	parsed, err := ParseUint128(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
