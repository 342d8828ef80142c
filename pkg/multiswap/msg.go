package multiswap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/Layr-Labs/multiswap-go/pkg/types"
)

const (
	// DefaultLimit is the page size used when a query omits limit.
	DefaultLimit = 10
	// MaxLimit caps the page size of every paginated query.
	MaxLimit = 30
)

type InstantiateMsg struct {
	Owner string `json:"owner"`
}

// ExecuteMsg is a tagged union; exactly one field must be set.
// On the wire it is {"<operation>":{...}}.
type ExecuteMsg struct {
	TransferOwnership  *TransferOwnershipMsg `json:"transfer_ownership,omitempty"`
	SetFee             *SetFeeMsg            `json:"set_fee,omitempty"`
	AddSigner          *SignerMsg            `json:"add_signer,omitempty"`
	RemoveSigner       *SignerMsg            `json:"remove_signer,omitempty"`
	AddFoundryAsset    *FoundryAssetMsg      `json:"add_foundry_asset,omitempty"`
	RemoveFoundryAsset *FoundryAssetMsg      `json:"remove_foundry_asset,omitempty"`
	AddLiquidity       *LiquidityMsg         `json:"add_liquidity,omitempty"`
	RemoveLiquidity    *LiquidityMsg         `json:"remove_liquidity,omitempty"`
	WithdrawSigned     *WithdrawSignedMsg    `json:"withdraw_signed,omitempty"`
	Swap               *SwapMsg              `json:"swap,omitempty"`
}

type TransferOwnershipMsg struct {
	NewOwner string `json:"new_owner"`
}

type SetFeeMsg struct {
	Token  string        `json:"token"`
	Amount types.Uint128 `json:"amount"`
}

type SignerMsg struct {
	Signer string `json:"signer"`
}

type FoundryAssetMsg struct {
	Token string `json:"token"`
}

type LiquidityMsg struct {
	Token  string        `json:"token"`
	Amount types.Uint128 `json:"amount"`
}

type WithdrawSignedMsg struct {
	Payee     string        `json:"payee"`
	Token     string        `json:"token"`
	Amount    types.Uint128 `json:"amount"`
	Salt      string        `json:"salt"`
	Signature string        `json:"signature"`
}

type SwapMsg struct {
	Token         string        `json:"token"`
	Amount        types.Uint128 `json:"amount"`
	TargetChainID string        `json:"target_chain_id"`
	TargetToken   string        `json:"target_token"`
	TargetAddress string        `json:"target_address"`
}

// QueryMsg is a tagged union; exactly one field must be set.
type QueryMsg struct {
	Owner         *struct{}          `json:"owner,omitempty"`
	Fee           *struct{}          `json:"fee,omitempty"`
	Liquidity     *LiquidityQuery    `json:"liquidity,omitempty"`
	AllLiquidity  *AllLiquidityQuery `json:"all_liquidity,omitempty"`
	Signers       *PageQuery         `json:"signers,omitempty"`
	FoundryAssets *PageQuery         `json:"foundry_assets,omitempty"`
}

type LiquidityQuery struct {
	Owner string `json:"owner"`
	Token string `json:"token"`
}

// LiquidityCursor is the composite (token, user) key of a ledger entry.
// It serializes as a two element JSON array.
type LiquidityCursor [2]string

func (c LiquidityCursor) Token() string { return c[0] }
func (c LiquidityCursor) User() string  { return c[1] }

type AllLiquidityQuery struct {
	StartAfter *LiquidityCursor `json:"start_after,omitempty"`
	Limit      *uint32          `json:"limit,omitempty"`
}

type PageQuery struct {
	StartAfter *string `json:"start_after,omitempty"`
	Limit      *uint32 `json:"limit,omitempty"`
}

// FeeConfig is the single active fee record.
type FeeConfig struct {
	Token  string        `json:"token"`
	Amount types.Uint128 `json:"amount"`
}

// Liquidity is one ledger entry.
type Liquidity struct {
	User   string        `json:"user"`
	Token  string        `json:"token"`
	Amount types.Uint128 `json:"amount"`
}

// decodeMsg strictly decodes a tagged union and checks exactly one variant is set.
func decodeMsg(raw []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownMessage, err)
	}
	if n := countVariants(out); n != 1 {
		return fmt.Errorf("%w: expected exactly one operation, got %d", ErrUnknownMessage, n)
	}
	return nil
}

func countVariants(msg any) int {
	v := reflect.ValueOf(msg).Elem()
	n := 0
	for i := 0; i < v.NumField(); i++ {
		if !v.Field(i).IsNil() {
			n++
		}
	}
	return n
}

func pageLimit(limit *uint32) int {
	if limit == nil {
		return DefaultLimit
	}
	if *limit > MaxLimit {
		return MaxLimit
	}
	return int(*limit)
}
